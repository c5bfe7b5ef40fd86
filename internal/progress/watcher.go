package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WatchConfig bounds the polling fallback so abandoned jobs never pin a
// goroutine forever.
type WatchConfig struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
}

// DefaultWatchConfig polls every two seconds for at most ten minutes.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval:    2 * time.Second,
		MaxAttempts: 300,
		MaxDuration: 10 * time.Minute,
	}
}

// ErrWatchExhausted is returned when the cutoff is reached before the job
// settles.
var ErrWatchExhausted = fmt.Errorf("progress watch exhausted")

// WaitTerminal polls snapshots until the job reaches a terminal status or
// the explicit attempt/duration cutoff is hit. This is strictly the fallback
// path for consumers without a push subscription.
func (p *Publisher) WaitTerminal(ctx context.Context, jobID uuid.UUID, cfg WatchConfig) (*Snapshot, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 300
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 10 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.MaxDuration)
	defer cancel()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		snap, err := p.Snapshot(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, ErrWatchExhausted
}
