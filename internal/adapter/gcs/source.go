// Package gcs serves the flood-risk reference layer from a Google Cloud
// Storage object, as an alternative to S3 for the cloud backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// Object is the part of *storage.ObjectHandle the source needs.
type Object interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewRangeReader(ctx context.Context, offset, length int64) (*storage.Reader, error)
}

// Source reads one object through bounded ranged readers.
type Source struct {
	obj    Object
	open   delivery.OpenRangeFunc
	client *storage.Client
}

// Open creates a storage client using Application Default Credentials.
func Open(ctx context.Context, bucket, object string) (*Source, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "create gcs client")
	}
	src := New(client.Bucket(bucket).Object(object))
	src.client = client
	return src, nil
}

// New returns a Source over obj.
func New(obj Object) *Source {
	s := &Source{obj: obj}
	s.open = func(ctx context.Context, start, end int64) (io.ReadCloser, error) {
		r, err := obj.NewRangeReader(ctx, start, end-start+1)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("read bytes %d-%d", start, end))
		}
		return r, nil
	}
	return s
}

func (s *Source) Stat(ctx context.Context) (delivery.Info, error) {
	attrs, err := s.obj.Attrs(ctx)
	if err != nil {
		return delivery.Info{}, classify(err, "stat reference layer")
	}
	return delivery.Info{
		Name:    path.Base(attrs.Name),
		Size:    attrs.Size,
		ModTime: attrs.Updated,
		ETag:    attrs.Etag,
	}, nil
}

func (s *Source) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	info, err := s.Stat(ctx)
	if err != nil {
		return nil, err
	}
	return delivery.NewRangeReader(ctx, info.Size, delivery.DefaultRangeWindow, s.open), nil
}

// Close releases the client created by Open.
func (s *Source) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func classify(err error, msg string) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		return domain.Wrap(domain.KindNotFound, err, msg)
	case errors.Is(err, context.Canceled):
		return domain.Wrap(domain.KindDeliveryAborted, err, msg)
	default:
		return domain.Wrap(domain.KindBackendUnavailable, err, msg)
	}
}
