package delivery

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// Info describes a reference layer object before it is opened.
type Info struct {
	Name    string
	Size    int64
	ModTime time.Time
	ETag    string
}

// Source is a seekable, read-only object holding the flood-risk reference layer.
// Implementations classify failures with domain error kinds.
type Source interface {
	Stat(ctx context.Context) (Info, error)
	Open(ctx context.Context) (io.ReadSeekCloser, error)
}

// FileSource serves the reference layer from the local filesystem.
type FileSource struct {
	Path string
}

func (f FileSource) Stat(_ context.Context) (Info, error) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return Info{}, classifyFileError(err, f.Path)
	}
	if fi.IsDir() {
		return Info{}, domain.Errorf(domain.KindDeliveryAborted, "reference layer %s is a directory", f.Path)
	}
	return Info{Name: filepath.Base(f.Path), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (f FileSource) Open(_ context.Context) (io.ReadSeekCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, classifyFileError(err, f.Path)
	}
	return file, nil
}

func classifyFileError(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Wrap(domain.KindNotFound, err, "reference layer not found")
	}
	return domain.Wrap(domain.KindDeliveryAborted, err, "reference layer "+path+" is unreadable")
}
