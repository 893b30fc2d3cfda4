package observability

import (
	"log/slog"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and tags
// every record with the service and the selected backend.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "floodguard", "backend", cfg.Backend)
}
