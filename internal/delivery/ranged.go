package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultRangeWindow is the largest span requested from an object store in a
// single call.
const DefaultRangeWindow = 8 << 20

// OpenRangeFunc opens a reader over the inclusive byte span [start, end] of
// an object.
type OpenRangeFunc func(ctx context.Context, start, end int64) (io.ReadCloser, error)

// RangeReader adapts a remote object to io.ReadSeekCloser. Seeking is free;
// the object is requested only on the first Read after a seek, one window at
// a time, so a Range request fetches at most one window past the bytes it
// asks for.
type RangeReader struct {
	ctx     context.Context
	size    int64
	window  int64
	open    OpenRangeFunc
	offset  int64
	body    io.ReadCloser
	bodyEnd int64 // exclusive end of the open window
}

// NewRangeReader returns a RangeReader over an object of the given size that
// requests at most window bytes per call. A non-positive window means
// DefaultRangeWindow.
func NewRangeReader(ctx context.Context, size, window int64, open OpenRangeFunc) *RangeReader {
	if window <= 0 {
		window = DefaultRangeWindow
	}
	return &RangeReader{ctx: ctx, size: size, window: window, open: open}
}

func (r *RangeReader) Read(p []byte) (int, error) {
	for {
		if r.offset >= r.size {
			return 0, io.EOF
		}
		if r.body == nil {
			end := min(r.offset+r.window, r.size)
			body, err := r.open(r.ctx, r.offset, end-1)
			if err != nil {
				return 0, err
			}
			r.body, r.bodyEnd = body, end
		}

		n, err := r.body.Read(p)
		r.offset += int64(n)
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if r.offset < r.bodyEnd {
			return n, io.ErrUnexpectedEOF
		}
		if err := r.closeBody(); err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (r *RangeReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return r.offset, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return r.offset, fmt.Errorf("seek: negative position %d", abs)
	}
	if abs != r.offset {
		r.closeBody()
		r.offset = abs
	}
	return abs, nil
}

func (r *RangeReader) Close() error {
	return r.closeBody()
}

func (r *RangeReader) closeBody() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	r.bodyEnd = 0
	return err
}
