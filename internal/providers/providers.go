// Package providers defines the narrow contract between the orchestrator
// and concrete generation back-ends. The orchestrator never sees provider
// SDKs; it sees one Invoke call per step or simple job.
package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/pawpress/server/internal/domain"
)

// InternalProviderID marks assembly work (mixing, concatenation, delivery)
// executed by the pipeline itself rather than an external back-end.
const InternalProviderID = "internal"

// Call describes one generation request to a back-end.
type Call struct {
	ProviderID string
	JobID      uuid.UUID
	StepType   domain.StepType
	Kind       domain.JobKind
	Format     string
	Input      map[string]any
}

// Result is what a back-end returns on success.
type Result struct {
	// AssetKey locates the produced artifact in storage.
	AssetKey string
	Format   string
	Metadata map[string]any
}

// Invoker executes generation calls. Implementations must respect ctx
// cancellation and deadlines: the call's timeout is the orchestrator's only
// per-attempt wall clock.
type Invoker interface {
	Invoke(ctx context.Context, call Call) (Result, error)
}
