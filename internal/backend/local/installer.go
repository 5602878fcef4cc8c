package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nlepage/go-tarfs"
	"github.com/spf13/afero"

	"github.com/gantryhq/gantry/internal/backend"
	"github.com/gantryhq/gantry/internal/errors"
	"github.com/gantryhq/gantry/internal/logging"
)

// Receipt records one completed install in the target environment.
type Receipt struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Digest      string    `json:"digest"`
	InstalledAt time.Time `json:"installed_at"`
}

// Installer unpacks binary artifacts under <env>/pkg/<name>-<version> and
// tracks what is present via JSON receipts in <env>/receipts. The receipt
// is written last, so a crash mid-extract leaves no receipt and the item
// is installed again on the next run.
type Installer struct {
	fs  afero.Fs
	env string
	log *logging.Logger
}

// NewInstaller creates an Installer for the given environment directory.
func NewInstaller(fs afero.Fs, envDir string, log *logging.Logger) *Installer {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Installer{fs: fs, env: envDir, log: log}
}

// Install verifies the artifact against its digest, extracts it into the
// environment, and writes the receipt. A digest mismatch fails the item.
func (i *Installer) Install(ctx context.Context, item backend.ResolvedItem, art *backend.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if art == nil {
		return errors.NewStageError("no artifact to install", nil).
			WithStage("install").WithKey(item.Key())
	}

	got, _, err := digestFile(i.fs, art.Path)
	if err != nil {
		return errors.NewStageError("read artifact", err).
			WithStage("install").WithKey(item.Key())
	}
	if got != art.Digest {
		return errors.NewStageError(
			fmt.Sprintf("artifact digest mismatch: staged %s, expected %s", got, art.Digest), nil).
			WithStage("install").WithKey(item.Key())
	}

	dest := filepath.Join(i.env, "pkg", item.Name+"-"+item.Version)
	if err := i.extract(art.Path, dest); err != nil {
		return errors.NewStageError("extract artifact", err).
			WithStage("install").WithKey(item.Key())
	}

	if err := i.writeReceipt(Receipt{
		Key:         item.Key(),
		Name:        item.Name,
		Version:     item.Version,
		Digest:      art.Digest.String(),
		InstalledAt: time.Now().UTC(),
	}); err != nil {
		return errors.NewStageError("write receipt", err).
			WithStage("install").WithKey(item.Key())
	}

	i.log.Debug("item installed", "item", item.Key(), "dest", dest)
	return nil
}

// Installed reports whether a receipt exists for the keyed item.
func (i *Installer) Installed(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name, version, ok := backend.SplitKey(key)
	if !ok {
		return false, errors.Wrapf(errors.ErrInvalidInput, "malformed key %q", key)
	}
	return afero.Exists(i.fs, i.receiptPath(name, version))
}

// Receipts returns every receipt in the environment, sorted by key.
// Unreadable receipt files are skipped with a warning.
func (i *Installer) Receipts() ([]Receipt, error) {
	dir := filepath.Join(i.env, "receipts")
	exists, err := afero.DirExists(i.fs, dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	entries, err := afero.ReadDir(i.fs, dir)
	if err != nil {
		return nil, err
	}

	var receipts []Receipt
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := afero.ReadFile(i.fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			i.log.Warn("unreadable receipt", "file", entry.Name(), "error", err)
			continue
		}
		var r Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			i.log.Warn("malformed receipt", "file", entry.Name(), "error", err)
			continue
		}
		receipts = append(receipts, r)
	}

	sort.Slice(receipts, func(a, b int) bool { return receipts[a].Key < receipts[b].Key })
	return receipts, nil
}

// extract unpacks the tar at srcPath under dest.
func (i *Installer) extract(srcPath, dest string) error {
	in, err := i.fs.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	tfs, err := tarfs.New(in)
	if err != nil {
		return fmt.Errorf("open artifact tar: %w", err)
	}

	if err := i.fs.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return fs.WalkDir(tfs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		target := filepath.Join(dest, filepath.FromSlash(path))
		if d.IsDir() {
			return i.fs.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		src, err := tfs.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := i.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := i.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, src); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// receiptPath is where the receipt for name version lives.
func (i *Installer) receiptPath(name, version string) string {
	return filepath.Join(i.env, "receipts", name+"-"+version+".json")
}

// writeReceipt persists a receipt, creating the receipts directory on
// first install.
func (i *Installer) writeReceipt(r Receipt) error {
	if err := i.fs.MkdirAll(filepath.Join(i.env, "receipts"), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(i.fs, i.receiptPath(r.Name, r.Version), data, 0o644)
}
