package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tutor/internal/domain"
	"tutor/internal/metrics"
)

// PlanLookup resolves plan ids to catalog entries.
type PlanLookup interface {
	Lookup(id string) (domain.Plan, error)
}

// Options configures a Gate.
type Options struct {
	Plans   PlanLookup
	Ledger  domain.LedgerStore
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Gate admits or rejects requests against each user's plan budget. Usage is
// debited at admission.
type Gate struct {
	plans   PlanLookup
	ledger  domain.LedgerStore
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewGate(opts Options) (*Gate, error) {
	if opts.Plans == nil {
		return nil, errors.New("quota: plan lookup is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("quota: ledger store is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{
		plans:   opts.Plans,
		ledger:  opts.Ledger,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     clock,
	}, nil
}

// Admit debits one unit from the principal's budget. A denied request
// returns the admission together with a QuotaExceeded error and leaves the
// count untouched.
func (g *Gate) Admit(ctx context.Context, p domain.Principal) (domain.Admission, error) {
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return domain.Admission{}, domain.AccessDeniedError("missing user identity")
	}
	plan, err := g.plans.Lookup(p.PlanID)
	if err != nil {
		return domain.Admission{}, err
	}
	now := g.now().UTC()
	res, err := g.ledger.Consume(ctx, domain.ConsumeRequest{
		UserID:    userID,
		Now:       now,
		NextReset: plan.NextReset(now),
		Limit:     plan.Limit,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Str("plan", plan.ID).Msg("quota: ledger update failed")
		return domain.Admission{}, domain.PersistenceError("usage ledger unavailable", err)
	}

	adm := domain.Admission{
		UserID:   userID,
		PlanID:   plan.ID,
		Admitted: res.Admitted,
		Count:    res.Count,
		Limit:    plan.Limit,
		ResetAt:  res.ResetAt,
		Rolled:   res.Rolled,
	}
	g.metrics.ObserveAdmission(plan.ID, res.Admitted)
	if res.Rolled {
		g.logger.Debug().Str("user_id", userID).Str("plan", plan.ID).Msg("quota: usage window rolled over")
	}
	if !res.Admitted {
		g.logger.Info().Str("user_id", userID).Str("plan", plan.ID).Int("count", res.Count).Msg("quota: request denied")
		return adm, domain.QuotaExceededError(deniedMessage(plan, res.ResetAt))
	}
	return adm, nil
}

// Usage reports the principal's current standing without consuming budget.
func (g *Gate) Usage(ctx context.Context, p domain.Principal) (domain.Admission, error) {
	userID := strings.TrimSpace(p.UserID)
	if userID == "" {
		return domain.Admission{}, domain.AccessDeniedError("missing user identity")
	}
	plan, err := g.plans.Lookup(p.PlanID)
	if err != nil {
		return domain.Admission{}, err
	}
	ledger, err := g.ledger.Get(ctx, userID)
	if err != nil {
		return domain.Admission{}, domain.PersistenceError("usage ledger unavailable", err)
	}
	ledger = ledger.Effective(g.now().UTC(), plan.Interval)
	adm := domain.Admission{
		UserID:   userID,
		PlanID:   plan.ID,
		Count:    ledger.Count,
		Limit:    plan.Limit,
		ResetAt:  ledger.ResetAt,
		Admitted: plan.Limit == nil || ledger.Count < *plan.Limit,
	}
	return adm, nil
}

// Reset zeroes a user's usage and clears the window. Administrative use only.
func (g *Gate) Reset(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.InvalidInputError("user id is required")
	}
	if err := g.ledger.Reset(ctx, userID); err != nil {
		return domain.PersistenceError("reset usage ledger", err)
	}
	g.logger.Info().Str("user_id", userID).Msg("quota: usage reset")
	return nil
}

func deniedMessage(plan domain.Plan, resetAt *time.Time) string {
	limit := 0
	if plan.Limit != nil {
		limit = *plan.Limit
	}
	if resetAt == nil {
		return fmt.Sprintf("the %s plan allows %d messages; upgrade to continue", plan.Name, limit)
	}
	return fmt.Sprintf("the %s plan allows %d messages per %s window; resets at %s",
		plan.Name, limit, windowName(plan.Interval), resetAt.UTC().Format(time.RFC3339))
}

func windowName(i domain.ResetInterval) string {
	switch i {
	case domain.IntervalHourly:
		return "hour"
	case domain.IntervalDaily:
		return "day"
	case domain.IntervalMonthly:
		return "month"
	case domain.IntervalYearly:
		return "year"
	}
	return string(i)
}
