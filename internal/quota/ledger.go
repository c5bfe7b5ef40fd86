// Package quota gates job admission against per-tenant monthly counters
// ("woofs" for credits) with a soft-overage tolerance and scheduled resets.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
)

// Ledger wraps the quota store with admission and reset policy.
type Ledger struct {
	store domain.QuotaStore
	log   zerolog.Logger
}

// NewLedger builds a ledger over the given store.
func NewLedger(store domain.QuotaStore, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// ResourceForKind maps a job kind onto the counter it consumes.
func ResourceForKind(kind domain.JobKind) domain.QuotaResource {
	if kind == domain.JobKindVideo {
		return domain.QuotaResourceVideos
	}
	return domain.QuotaResourceImages
}

// AmountForKind reports how many units one job of the kind consumes.
// A carousel consumes one image unit per slide.
func AmountForKind(kind domain.JobKind, payload domain.Payload) int {
	if kind == domain.JobKindCarousel {
		if p, ok := payload.(*domain.CarouselPayload); ok && len(p.Slides) > 0 {
			return len(p.Slides)
		}
	}
	return 1
}

// Reserve admits the request iff used + amount stays within the soft-overage
// allowance. The increment happens in a single conditional statement at the
// storage layer, so concurrent admissions cannot overshoot together.
func (l *Ledger) Reserve(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error {
	if amount <= 0 {
		return nil
	}
	if err := l.store.Consume(ctx, tenantID, res, amount); err != nil {
		if err == domain.ErrQuotaExceeded {
			l.log.Info().Str("tenant_id", tenantID).Str("resource", string(res)).Int("amount", amount).Msg("quota: reservation rejected")
		}
		return err
	}
	return nil
}

// Release returns a reservation that was not used, e.g. when an idempotent
// enqueue lost the insert race and the existing job already paid for it.
func (l *Ledger) Release(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) {
	if amount <= 0 {
		return
	}
	if err := l.store.Release(ctx, tenantID, res, amount); err != nil {
		l.log.Error().Err(err).Str("tenant_id", tenantID).Str("resource", string(res)).Msg("quota: release failed")
	}
}

// Account returns the tenant's account for reporting. Remaining values are
// computed via QuotaAccount.Remaining and are never negative.
func (l *Ledger) Account(ctx context.Context, tenantID string) (*domain.QuotaAccount, error) {
	return l.store.Get(ctx, tenantID)
}

// Reset zeroes usage and advances resets_on to the next monthly boundary.
// It is idempotent: a no-op while resets_on is still in the future, so it is
// safe to invoke from a periodic trigger without external deduplication.
func (l *Ledger) Reset(ctx context.Context, tenantID string, now time.Time) (bool, error) {
	applied, err := l.store.Reset(ctx, tenantID, NextBoundary(now))
	if err != nil {
		return false, fmt.Errorf("reset quota for %s: %w", tenantID, err)
	}
	if applied {
		l.log.Info().Str("tenant_id", tenantID).Msg("quota: counters reset")
	}
	return applied, nil
}

// ResetDue resets every tenant whose billing boundary has passed.
func (l *Ledger) ResetDue(ctx context.Context, now time.Time) (int, error) {
	tenants, err := l.store.TenantsDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list tenants due for reset: %w", err)
	}
	resets := 0
	for _, tenant := range tenants {
		applied, err := l.Reset(ctx, tenant, now)
		if err != nil {
			l.log.Error().Err(err).Str("tenant_id", tenant).Msg("quota: scheduled reset failed")
			continue
		}
		if applied {
			resets++
		}
	}
	return resets, nil
}

// NextBoundary returns the first instant of the next month in UTC.
func NextBoundary(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
