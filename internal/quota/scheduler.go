package quota

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers ledger resets on a cron cadence. Because Reset is
// idempotent per tenant, overlapping or duplicate ticks are harmless.
type Scheduler struct {
	ledger *Ledger
	cron   *cron.Cron
	log    zerolog.Logger
}

// NewScheduler builds a scheduler with the given cron spec (standard five
// field format, e.g. "17 * * * *").
func NewScheduler(ledger *Ledger, spec string, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{ledger: ledger, cron: cron.New(), log: log}
	_, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduling in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("quota: reset scheduler started")
}

// Stop halts scheduling and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resets, err := s.ledger.ResetDue(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("quota: reset sweep failed")
		return
	}
	if resets > 0 {
		s.log.Info().Int("resets", resets).Msg("quota: reset sweep applied")
	}
}
