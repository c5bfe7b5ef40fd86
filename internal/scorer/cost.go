package scorer

import (
	"math"

	"github.com/pawpress/server/internal/domain"
)

// EstimateCost prices one generation call against a provider cost model:
// base unit cost x resolution multiplier x duration chunks x quality
// multiplier. Unknown multipliers default to 1.
func EstimateCost(model domain.CostModel, req Request) float64 {
	cost := model.BaseUnitCost
	if cost <= 0 {
		return 0
	}
	cost *= factorOr(model.ResolutionFactors, req.Resolution, 1)
	cost *= factorOr(model.QualityFactors, req.Quality, 1)
	return cost * float64(durationChunks(model, req))
}

// durationChunks reports how many billing chunks the request spans. Requests
// without a duration (images) always occupy one chunk.
func durationChunks(model domain.CostModel, req Request) int {
	if req.DurationSeconds <= 0 || model.ChunkSeconds <= 0 {
		return 1
	}
	chunks := int(math.Ceil(float64(req.DurationSeconds) / float64(model.ChunkSeconds)))
	if chunks < 1 {
		return 1
	}
	return chunks
}

func factorOr(factors map[string]float64, key string, fallback float64) float64 {
	if key == "" || factors == nil {
		return fallback
	}
	if f, ok := factors[key]; ok && f > 0 {
		return f
	}
	return fallback
}
