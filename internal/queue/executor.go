package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/providers"
	"github.com/pawpress/server/internal/scorer"
	"github.com/pawpress/server/internal/storage"
	"github.com/pawpress/server/pkg/zip"
)

// CreditReserver gates external calls on the tenant's credit ("woof")
// balance. quota.Ledger satisfies it.
type CreditReserver interface {
	Reserve(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error
	Release(ctx context.Context, tenantID string, res domain.QuotaResource, amount int)
}

// Executor runs simple (image and carousel) jobs: one provider selection,
// one external call per artifact, no step rows.
type Executor struct {
	selector *scorer.Selector
	invoker  providers.Invoker
	credits  CreditReserver
	store    *storage.FileStore
	log      zerolog.Logger
}

// NewExecutor wires the simple-job executor; store may be nil when artifact
// archiving is not needed.
func NewExecutor(selector *scorer.Selector, invoker providers.Invoker, credits CreditReserver, store *storage.FileStore, log zerolog.Logger) *Executor {
	return &Executor{selector: selector, invoker: invoker, credits: credits, store: store, log: log}
}

// Execute produces the job's result document.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) ([]byte, error) {
	switch job.Kind {
	case domain.JobKindImage:
		return e.executeImage(ctx, job)
	case domain.JobKindCarousel:
		return e.executeCarousel(ctx, job)
	default:
		return nil, fmt.Errorf("executor does not handle %s jobs", job.Kind)
	}
}

func (e *Executor) executeImage(ctx context.Context, job *domain.Job) ([]byte, error) {
	var payload domain.ImagePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}

	selection, err := e.selectProvider(ctx, scorer.Request{
		UseCase:    "image",
		Modality:   domain.ModalityImage,
		Format:     "png",
		Quality:    payload.Quality,
		Resolution: payload.Resolution,
	})
	if err != nil {
		return nil, err
	}

	result, err := e.invokeWithCredits(ctx, job, selection, providers.Call{
		ProviderID: selection.ProviderID,
		JobID:      job.ID,
		Kind:       job.Kind,
		Format:     "png",
		Input:      decodeInput(job.Payload),
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"asset_key":  result.AssetKey,
		"format":     result.Format,
		"provider":   selection.ProviderID,
		"cost_units": selection.CostUnits,
	})
}

// executeCarousel generates one image per slide, then bundles the artifacts
// into a single downloadable archive.
func (e *Executor) executeCarousel(ctx context.Context, job *domain.Job) ([]byte, error) {
	var payload domain.CarouselPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode carousel payload: %w", err)
	}
	if len(payload.Slides) == 0 {
		return nil, fmt.Errorf("carousel job %s has no slides", job.ID)
	}

	selection, err := e.selectProvider(ctx, scorer.Request{
		UseCase:  "carousel",
		Modality: domain.ModalityImage,
		Format:   "png",
		Quality:  payload.Quality,
	})
	if err != nil {
		return nil, err
	}

	slideKeys := make([]string, 0, len(payload.Slides))
	archive := make([]zip.Asset, 0, len(payload.Slides))
	for i, slide := range payload.Slides {
		result, err := e.invokeWithCredits(ctx, job, selection, providers.Call{
			ProviderID: selection.ProviderID,
			JobID:      job.ID,
			Kind:       job.Kind,
			Format:     "png",
			Input:      map[string]any{"slide": i, "prompt": slide.Prompt, "caption": slide.Caption, "style": payload.Style},
		})
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i, err)
		}
		slideKeys = append(slideKeys, result.AssetKey)
		if e.store != nil {
			data, readErr := e.store.Read(ctx, result.AssetKey)
			if readErr != nil {
				e.log.Warn().Err(readErr).Str("job_id", job.ID.String()).Str("asset_key", result.AssetKey).Msg("queue: slide artifact unreadable, skipping archive entry")
				continue
			}
			archive = append(archive, zip.Asset{
				Filename: fmt.Sprintf("slide-%02d.%s", i+1, result.Format),
				MIME:     "image/" + result.Format,
				Data:     data,
			})
		}
	}

	out := map[string]any{
		"slide_keys": slideKeys,
		"provider":   selection.ProviderID,
		"cost_units": selection.CostUnits * float64(len(payload.Slides)),
	}
	if e.store != nil && len(archive) > 0 {
		bundle, err := zip.ArchiveAssets(archive)
		if err != nil {
			return nil, fmt.Errorf("archive carousel: %w", err)
		}
		key := fmt.Sprintf("generated/images/%s/carousel.zip", job.ID)
		written, err := e.store.Write(ctx, key, bundle)
		if err != nil {
			return nil, fmt.Errorf("write carousel archive: %w", err)
		}
		out["asset_key"] = written
		out["format"] = "zip"
	} else if len(slideKeys) > 0 {
		out["asset_key"] = slideKeys[0]
		out["format"] = "png"
	}
	return json.Marshal(out)
}

func (e *Executor) selectProvider(ctx context.Context, req scorer.Request) (scorer.Selection, error) {
	decision, err := e.selector.Select(ctx, req)
	if err != nil {
		return scorer.Selection{}, err
	}
	if !decision.OK {
		return scorer.Selection{}, fmt.Errorf("no viable provider for %s: %v", req.UseCase, decision.Suggestions)
	}
	return decision.Selection, nil
}

// invokeWithCredits reserves the selection's cost in credit units, makes the
// call, and releases the reservation if the call failed. The outcome feeds
// the bandit either way.
func (e *Executor) invokeWithCredits(ctx context.Context, job *domain.Job, selection scorer.Selection, call providers.Call) (providers.Result, error) {
	units := CreditUnits(selection.CostUnits)
	if err := e.credits.Reserve(ctx, job.TenantID, domain.QuotaResourceCredits, units); err != nil {
		return providers.Result{}, err
	}

	expected := time.Duration(selection.ETASeconds * float64(time.Second))
	start := time.Now()
	result, err := e.invoker.Invoke(ctx, call)
	elapsed := time.Since(start)

	req := scorer.Request{UseCase: useCaseFor(job.Kind), Format: call.Format}
	if recErr := e.selector.RecordOutcome(ctx, selection.ProviderID, req, err == nil, elapsed, expected); recErr != nil {
		e.log.Warn().Err(recErr).Str("provider", selection.ProviderID).Msg("queue: outcome feedback failed")
	}

	if err != nil {
		e.credits.Release(ctx, job.TenantID, domain.QuotaResourceCredits, units)
		return providers.Result{}, err
	}
	return result, nil
}

func useCaseFor(kind domain.JobKind) string {
	if kind == domain.JobKindCarousel {
		return "carousel"
	}
	return "image"
}

// CreditUnits rounds an estimated cost up to whole credit ("woof") units.
func CreditUnits(cost float64) int {
	if cost <= 0 {
		return 0
	}
	return int(math.Ceil(cost))
}

func decodeInput(payload []byte) map[string]any {
	var input map[string]any
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &input)
	}
	return input
}
