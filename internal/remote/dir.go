package remote

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	errs "github.com/alexjbarnes/tracker-sync/internal/errors"
)

const (
	// blobName is the snapshot file name inside the remote directory.
	blobName = "snapshot.bin"

	// dirPerm is the permission mode for the remote directory.
	dirPerm = fs.FileMode(0o700)

	// blobPerm is the permission mode for the snapshot file.
	blobPerm = fs.FileMode(0o600)
)

// DirTransport stores the snapshot blob as a single file in a local
// directory, typically one mounted by a file-sync provider. Uploads are
// atomic: the blob is written to a temp file and renamed into place so a
// concurrent reader never observes a half-written snapshot.
type DirTransport struct {
	dir string
}

// NewDir builds a directory-backed transport rooted at dir.
func NewDir(dir string) *DirTransport {
	return &DirTransport{dir: dir}
}

func (t *DirTransport) path() string {
	return filepath.Join(t.dir, blobName)
}

// Upload atomically replaces the snapshot file.
func (t *DirTransport) Upload(_ context.Context, data []byte) error {
	if err := os.MkdirAll(t.dir, dirPerm); err != nil {
		return fmt.Errorf("creating remote directory: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, blobName+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Chmod(tmpName, blobPerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}

	if err := os.Rename(tmpName, t.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// Download reads the snapshot file.
func (t *DirTransport) Download(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(t.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoSnapshot
		}

		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	return data, nil
}

// Metadata stats the snapshot file.
func (t *DirTransport) Metadata(_ context.Context) (*Metadata, error) {
	info, err := os.Stat(t.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoSnapshot
		}

		return nil, fmt.Errorf("stating snapshot: %w", err)
	}

	return &Metadata{ModifiedAt: info.ModTime(), Size: info.Size()}, nil
}
