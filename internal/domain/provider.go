package domain

import "time"

// Modality enumerates the media kinds a provider can produce.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// CostModel describes how a provider charges for one generation call.
// Estimated cost = BaseUnitCost * resolution multiplier * duration chunks *
// quality multiplier.
type CostModel struct {
	BaseUnitCost      float64 `json:"base_unit_cost"`
	ChunkSeconds      int     `json:"chunk_seconds"`
	ResolutionFactors map[string]float64 `json:"resolution_factors"`
	QualityFactors    map[string]float64 `json:"quality_factors"`
}

// Provider is a capability descriptor for a generation back-end. Rows are
// maintained by configuration; the orchestrator only reads them.
type Provider struct {
	ID           string
	Name         string
	Modalities   []Modality
	Formats      []string
	Cost         CostModel
	QualityScore float64
	AvgLatencyS  float64
	FailRate     float64
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Supports reports whether the provider can serve the modality/format pair.
// An empty format list means any format.
func (p Provider) Supports(m Modality, format string) bool {
	found := false
	for _, mod := range p.Modalities {
		if mod == m {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if format == "" || len(p.Formats) == 0 {
		return true
	}
	for _, f := range p.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// ProviderMetrics tracks bandit statistics per (provider, use case, format).
// Each key starts cold with zero trials.
type ProviderMetrics struct {
	ProviderID string
	UseCase    string
	Format     string
	Trials     int64
	AvgReward  float64
	UpdatedAt  time.Time
}
