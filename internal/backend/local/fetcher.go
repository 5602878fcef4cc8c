package local

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
)

// Fetcher stages index artifacts into a content-addressed cache laid out
// as <cache>/<algorithm>/<hex>. A payload already in the cache is
// re-verified and reused without copying.
type Fetcher struct {
	fs    afero.Fs
	cache string
	log   *logging.Logger
}

// NewFetcher creates a Fetcher over the given cache directory.
func NewFetcher(fs afero.Fs, cacheDir string, log *logging.Logger) *Fetcher {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Fetcher{fs: fs, cache: cacheDir, log: log}
}

// Fetch copies the item's payload from its index origin into the cache and
// returns the staged artifact. Fetch failures are retryable: nothing about
// a failed copy poisons the cache.
func (f *Fetcher) Fetch(ctx context.Context, item backend.ResolvedItem) (*backend.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.Origin == "" {
		return nil, errors.NewStageError("item has no origin", nil).
			WithStage("fetch").WithKey(item.Key())
	}

	dgst, size, err := digestFile(f.fs, item.Origin)
	if err != nil {
		return nil, errors.NewStageError("read origin artifact", err).
			WithStage("fetch").WithKey(item.Key()).WithRetryable(true)
	}

	path := f.blobPath(dgst)
	ok, err := f.verifyCached(path, dgst)
	if err != nil {
		return nil, errors.NewStageError("verify cached artifact", err).
			WithStage("fetch").WithKey(item.Key()).WithRetryable(true)
	}
	if !ok {
		if err := f.copyIn(item.Origin, path, dgst); err != nil {
			return nil, errors.NewStageError("stage artifact into cache", err).
				WithStage("fetch").WithKey(item.Key()).WithRetryable(true)
		}
		f.log.Debug("artifact cached", "item", item.Key(), "digest", dgst.String(), "bytes", size)
	} else {
		f.log.Debug("artifact cache hit", "item", item.Key(), "digest", dgst.String())
	}

	return &backend.Artifact{
		Key:    item.Key(),
		Kind:   item.Kind,
		Path:   path,
		Digest: dgst,
		Size:   size,
	}, nil
}

// blobPath maps a digest to its cache location.
func (f *Fetcher) blobPath(d digest.Digest) string {
	return filepath.Join(f.cache, string(d.Algorithm()), d.Encoded())
}

// verifyCached reports whether path holds a payload matching d.
func (f *Fetcher) verifyCached(path string, d digest.Digest) (bool, error) {
	exists, err := afero.Exists(f.fs, path)
	if err != nil || !exists {
		return false, err
	}
	got, _, err := digestFile(f.fs, path)
	if err != nil {
		return false, err
	}
	if got != d {
		// A corrupt cache entry is overwritten, not fatal.
		f.log.Warn("cache entry digest mismatch, restaging", "path", path)
		return false, nil
	}
	return true, nil
}

// copyIn copies src into the cache at dst and confirms the written bytes
// still match the expected digest.
func (f *Fetcher) copyIn(src, dst string, want digest.Digest) error {
	if err := f.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := f.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := f.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	got, _, err := digestFile(f.fs, dst)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("cache write corrupted: digest %s, want %s", got, want)
	}
	return nil
}

// digestFile computes the canonical digest and size of a file.
func digestFile(fsys afero.Fs, path string) (digest.Digest, int64, error) {
	fi, err := fsys.Stat(path)
	if err != nil {
		return "", 0, err
	}
	file, err := fsys.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	d, err := digest.FromReader(file)
	if err != nil {
		return "", 0, err
	}
	return d, fi.Size(), nil
}
