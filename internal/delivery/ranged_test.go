package delivery_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteObject records every ranged open against an in-memory object.
type remoteObject struct {
	data    []byte
	offsets []int64
	spans   [][2]int64
	closed  int
}

func (o *remoteObject) open(_ context.Context, start, end int64) (io.ReadCloser, error) {
	o.offsets = append(o.offsets, start)
	o.spans = append(o.spans, [2]int64{start, end})
	stop := min(end+1, int64(len(o.data)))
	return &trackedBody{Reader: bytes.NewReader(o.data[start:stop]), obj: o}, nil
}

type trackedBody struct {
	*bytes.Reader
	obj *remoteObject
}

func (b *trackedBody) Close() error {
	b.obj.closed++
	return nil
}

func TestRangeReader_SeekDoesNotFetch(t *testing.T) {
	obj := &remoteObject{data: []byte("0123456789")}
	r := delivery.NewRangeReader(context.Background(), int64(len(obj.data)), 0, obj.open)

	end, err := r.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(10), end)
	_, err = r.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Empty(t, obj.offsets)

	buf := make([]byte, 3)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf))
	assert.Equal(t, []int64{4}, obj.offsets)
}

func TestRangeReader_SeekAfterReadReopens(t *testing.T) {
	obj := &remoteObject{data: []byte("abcdefghij")}
	r := delivery.NewRangeReader(context.Background(), int64(len(obj.data)), 0, obj.open)

	buf := make([]byte, 2)
	_, err := io.ReadFull(r, buf)
	require.NoError(t, err)

	_, err = r.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, "hij", string(rest))
	assert.Equal(t, []int64{0, 7}, obj.offsets)
	assert.Equal(t, 2, obj.closed, "previous body closed on seek, last closed at its end")
	require.NoError(t, r.Close())
	assert.Equal(t, 2, obj.closed)
}

func TestRangeReader_FetchesBoundedWindows(t *testing.T) {
	obj := &remoteObject{data: []byte("abcdefghijklmnopqrstuvwxy")}
	r := delivery.NewRangeReader(context.Background(), int64(len(obj.data)), 10, obj.open)

	all, err := io.ReadAll(r)

	require.NoError(t, err)
	assert.Equal(t, obj.data, all)
	assert.Equal(t, [][2]int64{{0, 9}, {10, 19}, {20, 24}}, obj.spans)
	assert.Equal(t, 3, obj.closed)
}

func TestRangeReader_ShortObjectIsUnexpectedEOF(t *testing.T) {
	obj := &remoteObject{data: []byte("abc")}
	r := delivery.NewRangeReader(context.Background(), 10, 0, obj.open)

	_, err := io.ReadAll(r)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRangeReader_InvalidSeek(t *testing.T) {
	r := delivery.NewRangeReader(context.Background(), 10, 0, (&remoteObject{}).open)

	_, err := r.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

type remoteSource struct{ obj *remoteObject }

func (s remoteSource) Stat(context.Context) (delivery.Info, error) {
	return delivery.Info{Name: "floodrisk.geojson", Size: int64(len(s.obj.data)), ETag: "abc123"}, nil
}

func (s remoteSource) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	return delivery.NewRangeReader(ctx, int64(len(s.obj.data)), 16, s.obj.open), nil
}

func TestServe_RemoteRangeFetchesOnlyRequestedBytes(t *testing.T) {
	obj := &remoteObject{data: bytes.Repeat([]byte("0123456789"), 100)}
	d := delivery.New(10, 64, discardLogger(), observability.NewMetricsForTesting())

	rec, err := serve(t, d, remoteSource{obj: obj}, "bytes=500-509")

	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, [][2]int64{{500, 515}}, obj.spans, "only one window past the requested bytes is fetched")
	assert.Equal(t, `"abc123"`, rec.Header().Get("ETag"))
}
