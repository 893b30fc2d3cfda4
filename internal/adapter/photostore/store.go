// Package photostore keeps photos attached to multipart flood reports on the
// local filesystem and serves them back under /uploads/.
package photostore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/google/uuid"
)

// URLPrefix is the path under which stored photos are served.
const URLPrefix = "/uploads/"

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// Store writes photos into one directory.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates a Store rooted at dir. Photos larger than maxBytes are rejected.
func New(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted photo.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Save stores the photo under a generated name and returns its public URL.
// The client-supplied filename contributes only its extension.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", domain.Errorf(domain.KindValidation, "photo type %q is not supported", ext)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	n, err := io.Copy(tmp, io.LimitReader(ctxReader{ctx: ctx, r: r}, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if n > s.maxBytes {
		return "", domain.Errorf(domain.KindValidation, "photo exceeds %d bytes", s.maxBytes)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return URLPrefix + name, nil
}

// Handler serves stored photos. Directory listings are disabled.
func (s *Store) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.StripPrefix(strings.TrimSuffix(URLPrefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))
}

// ctxReader stops copying once the request is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
