// Package delivery serves the flood-risk reference layer over HTTP.
//
// Layers smaller than the configured threshold are read into memory and
// checked to be a GeoJSON FeatureCollection before any byte is sent. Larger
// layers are streamed from their source without being buffered. Both paths
// support Range requests (206 Partial Content) through http.ServeContent.
//
// Once response headers have been written a failure cannot be reported with a
// status code, so a read error or client disconnect mid-transfer aborts the
// response with http.ErrAbortHandler, the same way httputil.ReverseProxy does.
package delivery

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/paulmach/orb/geojson"
)

const (
	StrategyBuffered = "buffered"
	StrategyStreamed = "streamed"

	contentType = "application/json"
)

// Deliverer chooses between buffered and streamed delivery per request.
type Deliverer struct {
	threshold int64
	chunkSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Deliverer. Layers of threshold bytes or more are streamed in
// reads of at most chunkSize bytes.
func New(threshold int64, chunkSize int, logger *slog.Logger, metrics *observability.Metrics) *Deliverer {
	return &Deliverer{
		threshold: threshold,
		chunkSize: chunkSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Strategy reports which delivery path a layer of the given size takes.
func (d *Deliverer) Strategy(size int64) string {
	if size < d.threshold {
		return StrategyBuffered
	}
	return StrategyStreamed
}

// Serve writes the layer held by src to w. An error is returned only if
// nothing has been written yet; failures after that point abort the response.
func (d *Deliverer) Serve(w http.ResponseWriter, r *http.Request, src Source) error {
	ctx := r.Context()

	info, err := src.Stat(ctx)
	if err != nil {
		return err
	}

	strategy := d.Strategy(info.Size)

	var body io.ReadSeeker
	rc, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	if strategy == StrategyBuffered {
		data, err := readLayer(rc)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = rc
	}

	d.metrics.DeliveryRequests.WithLabelValues(strategy).Inc()
	d.logger.Debug("serving reference layer",
		"strategy", strategy,
		"size", info.Size,
		"range", r.Header.Get("Range"),
	)

	guarded := &guardedReader{ReadSeeker: body, ctx: ctx, chunkSize: d.chunkSize}
	start := time.Now()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Delivery-Strategy", strategy)
	if info.ETag != "" {
		w.Header().Set("ETag", strconv.Quote(info.ETag))
	}
	http.ServeContent(w, r, info.Name, info.ModTime, guarded)

	d.metrics.DeliveryBytes.Add(float64(guarded.sent))

	if guarded.err != nil {
		d.metrics.DeliveryAborts.Inc()
		d.logger.Warn("reference layer delivery aborted",
			"kind", domain.KindDeliveryAborted,
			"strategy", strategy,
			"bytes_sent", guarded.sent,
			"elapsed", time.Since(start),
			"error", guarded.err,
		)
		panic(http.ErrAbortHandler)
	}
	return nil
}

// readLayer buffers a small layer and checks that it parses as a FeatureCollection.
func readLayer(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.Wrap(domain.KindDeliveryAborted, err, "read reference layer")
	}
	if _, err := geojson.UnmarshalFeatureCollection(data); err != nil {
		return nil, domain.Wrap(domain.KindDeliveryAborted, err, "reference layer is not a valid FeatureCollection")
	}
	return data, nil
}

// guardedReader caps each read to chunkSize, stops when the request context
// ends, and remembers the first read failure. http.ServeContent discards copy
// errors, so Serve inspects err afterwards.
type guardedReader struct {
	io.ReadSeeker
	ctx       context.Context
	chunkSize int
	sent      int64
	err       error
}

func (g *guardedReader) Read(p []byte) (int, error) {
	if err := g.ctx.Err(); err != nil {
		g.err = err
		return 0, err
	}
	if g.chunkSize > 0 && len(p) > g.chunkSize {
		p = p[:g.chunkSize]
	}
	n, err := g.ReadSeeker.Read(p)
	g.sent += int64(n)
	if err != nil && err != io.EOF && g.err == nil {
		g.err = err
	}
	return n, err
}
