// Package emit renders the reconciled import table into the generated kernel sources.
package emit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/castai/kimportgen/pkg/reconcile"
)

var ErrOutputExists = errors.New("output directory already exists")

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

type File struct {
	Name   string `json:"name" yaml:"name"`
	Size   int    `json:"size" yaml:"size"`
	Digest string `json:"digest" yaml:"digest"`
}

// Manifest lists the files written by Emit in write order.
type Manifest struct {
	Dir   string `json:"dir" yaml:"dir"`
	Files []File `json:"files" yaml:"files"`
}

// Emit writes all artifacts into dir, which must not exist yet. Files are staged in a
// sibling directory and renamed into place once all of them are written, so a failed
// run leaves neither dir nor the staging directory behind.
func Emit(fs afero.Fs, dir string, table *reconcile.ImportTable, opts Options) (*Manifest, error) {
	dir = filepath.Clean(dir)
	if err := ensureAbsent(fs, dir); err != nil {
		return nil, err
	}

	staging := filepath.Join(filepath.Dir(dir), fmt.Sprintf(".%s.tmp-%s", filepath.Base(dir), uuid.NewString()))
	if err := fs.MkdirAll(staging, dirMode); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = fs.RemoveAll(staging)
		}
	}()

	manifest := &Manifest{Dir: dir}
	for _, a := range Render(table, opts) {
		if err := afero.WriteFile(fs, filepath.Join(staging, a.Name), a.Content, fileMode); err != nil {
			return nil, fmt.Errorf("writing %s: %w", a.Name, err)
		}
		manifest.Files = append(manifest.Files, File{
			Name:   a.Name,
			Size:   len(a.Content),
			Digest: Digest(a.Content),
		})
	}

	if err := ensureAbsent(fs, dir); err != nil {
		return nil, err
	}
	if err := fs.Rename(staging, dir); err != nil {
		return nil, fmt.Errorf("moving %s into place: %w", dir, err)
	}
	committed = true

	return manifest, nil
}

// Digest is the hex xxhash64 of a file's content.
func Digest(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

func ensureAbsent(fs afero.Fs, dir string) error {
	exists, err := afero.Exists(fs, dir)
	if err != nil {
		return fmt.Errorf("checking output directory: %w", err)
	}
	if exists {
		return fmt.Errorf("%s: %w", dir, ErrOutputExists)
	}
	return nil
}
