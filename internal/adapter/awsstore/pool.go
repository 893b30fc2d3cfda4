package awsstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"golang.org/x/sync/semaphore"
)

// pool bounds the number of in-flight AWS calls. The SDK clients are safe for
// concurrent use and keep their own HTTP connections; the pool caps how many
// of those a single process may hold at once.
type pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	label   string
	metrics *observability.Metrics
}

func newPool(size int, timeout time.Duration, label string, metrics *observability.Metrics) *pool {
	return &pool{
		sem:     semaphore.NewWeighted(int64(size)),
		timeout: timeout,
		label:   label,
		metrics: metrics,
	}
}

// acquire waits at most p.timeout for a slot. The returned func must be called
// exactly once to release it.
func (p *pool) acquire(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			p.metrics.PoolWaitTimeouts.WithLabelValues(p.label).Inc()
			return nil, domain.Wrap(domain.KindBackendUnavailable, err,
				fmt.Sprintf("no connection available within %s", p.timeout))
		}
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "acquire connection")
	}
	return func() { p.sem.Release(1) }, nil
}

// newHTTPClient sizes the SDK transport to the pool: at most POOL_MAX
// connections per endpoint, with POOL_MIN of them kept idle between calls.
func newHTTPClient(cfg *config.Config) *awshttp.BuildableClient {
	return awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		idle := max(cfg.PoolMinConns, 1)
		tr.MaxConnsPerHost = cfg.PoolMaxConns
		tr.MaxIdleConnsPerHost = idle
		tr.MaxIdleConns = max(tr.MaxIdleConns, idle)
	})
}
