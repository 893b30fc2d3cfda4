package awsstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
)

// S3API is the subset of the S3 client used to read the reference layer.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the reference layer from one S3 object. Each ranged GET
// holds a pool slot only while the request is being issued.
type S3Source struct {
	client S3API
	bucket string
	key    string
	pool   *pool
}

// NewS3Source returns a delivery.Source over s3://bucket/key.
func NewS3Source(client S3API, bucket, key string, p *pool) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key, pool: p}
}

func (s *S3Source) Stat(ctx context.Context) (delivery.Info, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return delivery.Info{}, err
	}
	defer release()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return delivery.Info{}, classify(err, "head s3://"+s.bucket+"/"+s.key)
	}
	return delivery.Info{
		Name:    path.Base(s.key),
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
		ETag:    strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

func (s *S3Source) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	info, err := s.Stat(ctx)
	if err != nil {
		return nil, err
	}
	return delivery.NewRangeReader(ctx, info.Size, delivery.DefaultRangeWindow, s.openAt), nil
}

func (s *S3Source) openAt(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	release, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, classify(err, "get s3://"+s.bucket+"/"+s.key)
	}
	return out.Body, nil
}
