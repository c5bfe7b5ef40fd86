package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/sqlinline"
)

// ProviderRepositoryPG implements domain.ProviderStore and
// domain.ProviderMetricsStore over PostgreSQL.
type ProviderRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewProviderRepository creates a provider catalog store backed by PostgreSQL.
func NewProviderRepository(sql infra.SQLExecutor) *ProviderRepositoryPG {
	return &ProviderRepositoryPG{sql: sql}
}

func (r *ProviderRepositoryPG) List(ctx context.Context) ([]domain.Provider, error) {
	return r.list(ctx, sqlinline.QSelectProviders)
}

func (r *ProviderRepositoryPG) ListEnabled(ctx context.Context) ([]domain.Provider, error) {
	return r.list(ctx, sqlinline.QSelectEnabledProviders)
}

func (r *ProviderRepositoryPG) list(ctx context.Context, query string) ([]domain.Provider, error) {
	rows, err := r.sql.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var providers []domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows.Scan)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

func (r *ProviderRepositoryPG) Get(ctx context.Context, id string) (*domain.Provider, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectProviderByID, id)
	p, err := scanProvider(row.Scan)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProviderRepositoryPG) ForUseCase(ctx context.Context, useCase, format string) (map[string]domain.ProviderMetrics, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectProviderMetrics, useCase, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	metrics := make(map[string]domain.ProviderMetrics)
	for rows.Next() {
		var m domain.ProviderMetrics
		if err := rows.Scan(&m.ProviderID, &m.UseCase, &m.Format, &m.Trials, &m.AvgReward, &m.UpdatedAt); err != nil {
			return nil, err
		}
		metrics[m.ProviderID] = m
	}
	return metrics, rows.Err()
}

func (r *ProviderRepositoryPG) RecordOutcome(ctx context.Context, providerID, useCase, format string, reward float64) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertProviderOutcome, providerID, useCase, format, reward)
	return err
}

func scanProvider(scan func(dest ...any) error) (*domain.Provider, error) {
	var (
		p          domain.Provider
		modalities []string
		costModel  []byte
	)
	if err := scan(
		&p.ID,
		&p.Name,
		&modalities,
		&p.Formats,
		&costModel,
		&p.QualityScore,
		&p.AvgLatencyS,
		&p.FailRate,
		&p.Enabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, m := range modalities {
		p.Modalities = append(p.Modalities, domain.Modality(m))
	}
	if len(costModel) > 0 {
		if err := json.Unmarshal(costModel, &p.Cost); err != nil {
			return nil, fmt.Errorf("decode cost model for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

var (
	_ domain.ProviderStore        = (*ProviderRepositoryPG)(nil)
	_ domain.ProviderMetricsStore = (*ProviderRepositoryPG)(nil)
)
