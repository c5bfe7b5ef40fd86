package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/storage"
)

// SyntheticInvoker produces placeholder artifacts without calling any
// external service, so the full pipeline is exercisable in development and
// tests. When a file store is configured the placeholder bytes are written
// there; otherwise only the key is returned.
type SyntheticInvoker struct {
	store *storage.FileStore
	log   zerolog.Logger
}

// NewSyntheticInvoker builds the invoker; store may be nil.
func NewSyntheticInvoker(store *storage.FileStore, log zerolog.Logger) *SyntheticInvoker {
	return &SyntheticInvoker{store: store, log: log}
}

func (s *SyntheticInvoker) Invoke(ctx context.Context, call Call) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	format := call.Format
	if format == "" {
		format = defaultFormat(call)
	}
	key := assetKey(call, format)
	if s.store != nil {
		data := []byte(fmt.Sprintf("synthetic %s artifact for job %s", call.StepType, call.JobID))
		written, err := s.store.Write(ctx, key, data)
		if err != nil {
			return Result{}, fmt.Errorf("write synthetic asset: %w", err)
		}
		key = written
	}
	s.log.Debug().
		Str("job_id", call.JobID.String()).
		Str("provider", call.ProviderID).
		Str("asset_key", key).
		Msg("providers: synthetic artifact generated")
	return Result{
		AssetKey: key,
		Format:   format,
		Metadata: map[string]any{"provider": call.ProviderID, "synthetic": true},
	}, nil
}

func defaultFormat(call Call) string {
	switch call.StepType {
	case domain.StepTypeGenKeyframe:
		return "png"
	case domain.StepTypeVoiceover, domain.StepTypeMusic, domain.StepTypeMixAudio:
		return "mp3"
	case domain.StepTypeAnimateClip, domain.StepTypeConcatClips, domain.StepTypeDeliver:
		return "mp4"
	}
	if call.Kind == domain.JobKindVideo {
		return "mp4"
	}
	return "png"
}

func assetKey(call Call, format string) string {
	category := "images"
	if call.Kind == domain.JobKindVideo {
		category = "videos"
	}
	name := "asset"
	if call.StepType != "" {
		name = strings.ReplaceAll(string(call.StepType), "_", "-")
	}
	return fmt.Sprintf("generated/%s/%s/%s.%s", category, call.JobID, name, format)
}

var _ Invoker = (*SyntheticInvoker)(nil)
