package repo

import (
	"context"
	"fmt"
	"time"

	"tutor/internal/domain"
	"tutor/internal/infra"
	"tutor/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerStore backed by PostgreSQL.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

// Consume seeds the ledger row if needed, then applies the admission in a
// single locked update.
func (r *LedgerRepositoryPG) Consume(ctx context.Context, req domain.ConsumeRequest) (domain.ConsumeResult, error) {
	if _, err := r.sql.Exec(ctx, sqlinline.QEnsureUsageLedger, req.UserID, req.Now); err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("seed usage ledger: %w", err)
	}

	var limit any
	if req.Limit != nil {
		limit = *req.Limit
	}
	var nextReset any
	if req.NextReset != nil {
		nextReset = *req.NextReset
	}

	var (
		res     domain.ConsumeResult
		resetAt *time.Time
	)
	row := r.sql.QueryRow(ctx, sqlinline.QConsumeUsageLedger, req.UserID, req.Now, nextReset, limit)
	if err := row.Scan(&res.Count, &resetAt, &res.Admitted, &res.Rolled); err != nil {
		return domain.ConsumeResult{}, fmt.Errorf("consume usage ledger: %w", err)
	}
	res.ResetAt = utcPtr(resetAt)
	return res, nil
}

func (r *LedgerRepositoryPG) Get(ctx context.Context, userID string) (domain.UsageLedger, error) {
	ledger := domain.UsageLedger{UserID: userID}
	var resetAt *time.Time
	row := r.sql.QueryRow(ctx, sqlinline.QSelectUsageLedger, userID)
	if err := row.Scan(&ledger.Count, &resetAt, &ledger.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return domain.UsageLedger{UserID: userID}, nil
		}
		return domain.UsageLedger{}, fmt.Errorf("select usage ledger: %w", err)
	}
	ledger.ResetAt = utcPtr(resetAt)
	return ledger, nil
}

func (r *LedgerRepositoryPG) Reset(ctx context.Context, userID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QResetUsageLedger, userID); err != nil {
		return fmt.Errorf("reset usage ledger: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

var _ domain.LedgerStore = (*LedgerRepositoryPG)(nil)
