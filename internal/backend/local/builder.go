package local

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/nlepage/go-tarfs"
	"github.com/spf13/afero"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
)

// buildDir is the source-only subtree dropped during a build.
const buildDir = "build"

// Builder turns a fetched source tarball into an installable binary
// tarball: the payload minus its build/ subtree, re-digested and placed
// back into the cache.
type Builder struct {
	fs    afero.Fs
	cache string
	log   *logging.Logger
}

// NewBuilder creates a Builder writing into the given cache directory.
func NewBuilder(fs afero.Fs, cacheDir string, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Builder{fs: fs, cache: cacheDir, log: log}
}

// Build transforms a source artifact into a binary one. It is an error to
// call Build on anything but a source artifact.
func (b *Builder) Build(ctx context.Context, item backend.ResolvedItem, src *backend.Artifact) (*backend.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.NewStageError("no source artifact", nil).
			WithStage("build").WithKey(item.Key())
	}
	if !src.Kind.NeedsBuild() {
		return nil, errors.NewStageError(
			fmt.Sprintf("artifact kind %s is not buildable", src.Kind), nil).
			WithStage("build").WithKey(item.Key())
	}

	tmp := src.Path + ".build"
	size, err := b.writeStripped(src.Path, tmp)
	if err != nil {
		b.fs.Remove(tmp)
		return nil, errors.NewStageError("build artifact", err).
			WithStage("build").WithKey(item.Key())
	}

	dgst, _, err := digestFile(b.fs, tmp)
	if err != nil {
		b.fs.Remove(tmp)
		return nil, errors.NewStageError("digest built artifact", err).
			WithStage("build").WithKey(item.Key())
	}

	path := filepath.Join(b.cache, string(dgst.Algorithm()), dgst.Encoded())
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		b.fs.Remove(tmp)
		return nil, errors.NewStageError("place built artifact", err).
			WithStage("build").WithKey(item.Key())
	}
	if err := b.fs.Rename(tmp, path); err != nil {
		b.fs.Remove(tmp)
		return nil, errors.NewStageError("place built artifact", err).
			WithStage("build").WithKey(item.Key())
	}

	b.log.Debug("artifact built", "item", item.Key(), "digest", dgst.String(), "bytes", size)
	return &backend.Artifact{
		Key:    item.Key(),
		Kind:   backend.KindBinary,
		Path:   path,
		Digest: dgst,
		Size:   size,
	}, nil
}

// writeStripped copies the tar at srcPath to dstPath, dropping everything
// under the build/ subtree. Returns the written size.
func (b *Builder) writeStripped(srcPath, dstPath string) (int64, error) {
	in, err := b.fs.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tfs, err := tarfs.New(in)
	if err != nil {
		return 0, fmt.Errorf("open source tar: %w", err)
	}

	out, err := b.fs.Create(dstPath)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(out)

	walkErr := fs.WalkDir(tfs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if stripped(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = path
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		file, err := tfs.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if walkErr != nil {
		tw.Close()
		out.Close()
		return 0, walkErr
	}

	if err := tw.Close(); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	fi, err := b.fs.Stat(dstPath)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// stripped reports whether a tar entry path falls under the build subtree.
func stripped(path string) bool {
	return path == buildDir || strings.HasPrefix(path, buildDir+"/")
}
