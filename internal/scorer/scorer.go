// Package scorer ranks generation back-ends for a request by blending a
// weighted cost/quality/latency heuristic with an upper-confidence-bound
// exploration bonus, so under-sampled providers are periodically retried.
package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
)

const (
	// ExplorationC tunes how aggressively the bandit explores.
	ExplorationC = 1.5
	// coldStartBonus guarantees providers with zero trials are explored.
	coldStartBonus = ExplorationC * 2

	// latencyHalfPoint is the per-call latency at which latencyScore = 0.5.
	latencyHalfPoint = 30.0
)

// Request describes what a caller wants generated.
type Request struct {
	UseCase         string
	Modality        domain.Modality
	Format          string
	Quality         string
	Resolution      string
	DurationSeconds int
	// BudgetUnits caps the estimated cost; non-positive means unlimited.
	BudgetUnits float64
}

// Selection is the winning candidate of an OK decision.
type Selection struct {
	ProviderID   string
	Params       map[string]any
	CostUnits    float64
	ETASeconds   float64
	QualityScore float64
}

// Decision is either OK with a selection or KO with ordered, actionable
// suggestions derived from the budget gap. A KO is a soft outcome, not an
// error.
type Decision struct {
	OK          bool
	Selection   Selection
	Suggestions []string
}

// Weights shift by requested quality tier: premium favors quality, draft
// favors cost and latency, standard is balanced.
type Weights struct {
	Quality float64
	Cost    float64
	Latency float64
	Success float64
}

func weightsFor(quality string) Weights {
	switch quality {
	case "premium":
		return Weights{Quality: 0.5, Cost: 0.15, Latency: 0.15, Success: 0.2}
	case "draft":
		return Weights{Quality: 0.1, Cost: 0.4, Latency: 0.4, Success: 0.1}
	default:
		return Weights{Quality: 0.3, Cost: 0.3, Latency: 0.2, Success: 0.2}
	}
}

// Selector is the replaceable ranking policy. The rest of the orchestrator
// only sees Select and RecordOutcome.
type Selector struct {
	providers domain.ProviderStore
	metrics   domain.ProviderMetricsStore
	log       zerolog.Logger
}

// NewSelector builds a selector over the provider catalog and bandit metrics.
func NewSelector(providers domain.ProviderStore, metrics domain.ProviderMetricsStore, log zerolog.Logger) *Selector {
	return &Selector{providers: providers, metrics: metrics, log: log}
}

type candidate struct {
	provider domain.Provider
	cost     float64
	score    float64
}

// Select ranks capable, enabled providers and returns the highest-scoring
// candidate within budget, or a KO decision with suggestions.
func (s *Selector) Select(ctx context.Context, req Request) (Decision, error) {
	providers, err := s.providers.ListEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list providers: %w", err)
	}

	var capable []candidate
	for _, p := range providers {
		if !p.Supports(req.Modality, req.Format) {
			continue
		}
		capable = append(capable, candidate{provider: p, cost: EstimateCost(p.Cost, req)})
	}
	if len(capable) == 0 {
		return Decision{Suggestions: []string{"no enabled provider supports this modality and format"}}, nil
	}

	maxCost := 0.0
	for _, c := range capable {
		if c.cost > maxCost {
			maxCost = c.cost
		}
	}

	metrics, err := s.metrics.ForUseCase(ctx, req.UseCase, req.Format)
	if err != nil {
		return Decision{}, fmt.Errorf("load provider metrics: %w", err)
	}
	var totalTrials int64
	for _, m := range metrics {
		totalTrials += m.Trials
	}

	weights := weightsFor(req.Quality)
	var affordable []candidate
	cheapest := capable[0]
	for _, c := range capable {
		if c.cost < cheapest.cost {
			cheapest = c
		}
		if req.BudgetUnits > 0 && c.cost > req.BudgetUnits {
			continue
		}
		c.score = s.scoreCandidate(c, weights, maxCost, metrics[c.provider.ID], totalTrials)
		affordable = append(affordable, c)
	}

	if len(affordable) == 0 {
		return Decision{Suggestions: budgetSuggestions(req, cheapest)}, nil
	}

	sort.SliceStable(affordable, func(i, j int) bool {
		if affordable[i].score != affordable[j].score {
			return affordable[i].score > affordable[j].score
		}
		return affordable[i].provider.ID < affordable[j].provider.ID
	})
	best := affordable[0]
	s.log.Debug().
		Str("provider", best.provider.ID).
		Str("use_case", req.UseCase).
		Float64("score", best.score).
		Float64("cost", best.cost).
		Msg("scorer: selected provider")

	return Decision{
		OK: true,
		Selection: Selection{
			ProviderID: best.provider.ID,
			Params: map[string]any{
				"format":     req.Format,
				"quality":    req.Quality,
				"resolution": req.Resolution,
			},
			CostUnits:    best.cost,
			ETASeconds:   etaSeconds(best.provider, req),
			QualityScore: best.provider.QualityScore,
		},
	}, nil
}

func (s *Selector) scoreCandidate(c candidate, w Weights, maxCost float64, m domain.ProviderMetrics, totalTrials int64) float64 {
	normalizedCost := 0.0
	if maxCost > 0 {
		normalizedCost = c.cost / maxCost
	}
	latencyScore := 1.0 / (1.0 + c.provider.AvgLatencyS/latencyHalfPoint)
	successScore := 1.0 - c.provider.FailRate

	score := w.Quality*c.provider.QualityScore -
		w.Cost*normalizedCost +
		w.Latency*latencyScore +
		w.Success*successScore

	return score + ucbBonus(m, totalTrials)
}

// ucbBonus is the exploration term per (provider, use_case, format):
// c * sqrt(ln(totalTrials+1) / trials), plus the running average reward.
// Keys with zero trials get a fixed high bonus so cold starts are explored.
func ucbBonus(m domain.ProviderMetrics, totalTrials int64) float64 {
	if m.Trials <= 0 {
		return coldStartBonus
	}
	bonus := ExplorationC * math.Sqrt(math.Log(float64(totalTrials)+1)/float64(m.Trials))
	return bonus + m.AvgReward
}

func etaSeconds(p domain.Provider, req Request) float64 {
	chunks := durationChunks(p.Cost, req)
	return p.AvgLatencyS * float64(chunks)
}

// RecordOutcome feeds an observed call result back into the bandit.
func (s *Selector) RecordOutcome(ctx context.Context, providerID string, req Request, success bool, elapsed, expected time.Duration) error {
	reward := OutcomeReward(success, elapsed, expected)
	if err := s.metrics.RecordOutcome(ctx, providerID, req.UseCase, req.Format, reward); err != nil {
		return fmt.Errorf("record provider outcome: %w", err)
	}
	return nil
}

// OutcomeReward maps one call outcome onto [0, 1]: failures earn nothing,
// successes are discounted by how far latency overran the expectation.
func OutcomeReward(success bool, elapsed, expected time.Duration) float64 {
	if !success {
		return 0
	}
	if expected <= 0 || elapsed <= expected {
		return 1
	}
	overrun := float64(elapsed)/float64(expected) - 1
	return 1.0 / (1.0 + overrun)
}

func budgetSuggestions(req Request, cheapest candidate) []string {
	var out []string
	if req.DurationSeconds > 0 && cheapest.provider.Cost.ChunkSeconds > 0 {
		perChunk := cheapest.cost / float64(durationChunks(cheapest.provider.Cost, req))
		if perChunk > 0 && req.BudgetUnits > 0 {
			maxChunks := int(req.BudgetUnits / perChunk)
			if maxChunks >= 1 {
				seconds := maxChunks * cheapest.provider.Cost.ChunkSeconds
				out = append(out, fmt.Sprintf("reduce duration to %ds to fit your budget of %.0f units", seconds, req.BudgetUnits))
			}
		}
		if len(out) == 0 {
			out = append(out, "reduce the requested duration")
		}
	}
	switch req.Quality {
	case "premium":
		out = append(out, "switch to the standard quality tier")
	case "standard":
		out = append(out, "switch to the draft quality tier")
	}
	if req.Resolution != "" && req.Resolution != "720p" {
		out = append(out, "lower the resolution to 720p")
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("increase the budget: the cheapest capable provider costs %.1f units", cheapest.cost))
	}
	return out
}
