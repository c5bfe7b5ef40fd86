package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/pawpress/server/internal/domain"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/sqlinline"
)

// QuotaRepositoryPG implements domain.QuotaStore over PostgreSQL. All
// mutations are single conditional statements so admission stays correct
// under concurrent workers.
type QuotaRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewQuotaRepository creates a quota store backed by PostgreSQL.
func NewQuotaRepository(sql infra.SQLExecutor) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{sql: sql}
}

func (r *QuotaRepositoryPG) Get(ctx context.Context, tenantID string) (*domain.QuotaAccount, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectQuotaAccount, tenantID)
	var acc domain.QuotaAccount
	if err := row.Scan(
		&acc.TenantID,
		&acc.QuotaImages,
		&acc.ImagesUsed,
		&acc.QuotaVideos,
		&acc.VideosUsed,
		&acc.QuotaCredits,
		&acc.CreditsUsed,
		&acc.ResetsOn,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *QuotaRepositoryPG) Consume(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error {
	query, err := consumeQuery(res)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, query, tenantID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the account is missing or the soft-overage allowance was
		// exceeded. A tenant without an account has no limits configured
		// and is admitted without tracking.
		if _, getErr := r.Get(ctx, tenantID); getErr != nil {
			if getErr == domain.ErrNotFound {
				return nil
			}
			return getErr
		}
		return domain.ErrQuotaExceeded
	}
	return nil
}

func (r *QuotaRepositoryPG) Release(ctx context.Context, tenantID string, res domain.QuotaResource, amount int) error {
	query, err := releaseQuery(res)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, query, tenantID, amount)
	return err
}

func (r *QuotaRepositoryPG) Reset(ctx context.Context, tenantID string, next time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QResetQuotaAccount, tenantID, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QuotaRepositoryPG) TenantsDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectQuotaTenantsDue, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func consumeQuery(res domain.QuotaResource) (string, error) {
	switch res {
	case domain.QuotaResourceImages:
		return sqlinline.QConsumeQuotaImages, nil
	case domain.QuotaResourceVideos:
		return sqlinline.QConsumeQuotaVideos, nil
	case domain.QuotaResourceCredits:
		return sqlinline.QConsumeQuotaCredits, nil
	}
	return "", fmt.Errorf("unknown quota resource %q", res)
}

func releaseQuery(res domain.QuotaResource) (string, error) {
	switch res {
	case domain.QuotaResourceImages:
		return sqlinline.QReleaseQuotaImages, nil
	case domain.QuotaResourceVideos:
		return sqlinline.QReleaseQuotaVideos, nil
	case domain.QuotaResourceCredits:
		return sqlinline.QReleaseQuotaCredits, nil
	}
	return "", fmt.Errorf("unknown quota resource %q", res)
}

var _ domain.QuotaStore = (*QuotaRepositoryPG)(nil)
