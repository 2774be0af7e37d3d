package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/observability"
)

// ExpiringStore drops records that fell out of its retention window.
type ExpiringStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ExpiryReaper periodically reclaims expired rows. Reads already exclude expired records,
// so the reaper only bounds storage growth.
type ExpiryReaper struct {
	stores   map[string]ExpiringStore
	interval time.Duration
	logger   zerolog.Logger
}

// NewExpiryReaper constructs a reaper for the named stores.
func NewExpiryReaper(interval time.Duration, logger zerolog.Logger, stores map[string]ExpiringStore) *ExpiryReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryReaper{
		stores:   stores,
		interval: interval,
		logger:   logger.With().Str("component", "expiry_reaper").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (r *ExpiryReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep purges every store once.
func (r *ExpiryReaper) Sweep(ctx context.Context) {
	for name, store := range r.stores {
		removed, err := store.PurgeExpired(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("store", name).Msg("failed to purge expired records")
			continue
		}
		if removed > 0 {
			observability.StoreExpired().WithLabelValues(name).Add(float64(removed))
			r.logger.Debug().Str("store", name).Int64("removed", removed).Msg("purged expired records")
		}
	}
}
