package domain

import "time"

// UsageLedger tracks consumption of a plan budget for one user.
type UsageLedger struct {
	UserID    string
	Count     int
	ResetAt   *time.Time
	UpdatedAt time.Time
}

// ConsumeRequest is the input of one atomic admission against a ledger.
// NextReset is nil for lifetime plans and Limit is nil for unlimited plans.
type ConsumeRequest struct {
	UserID    string
	Now       time.Time
	NextReset *time.Time
	Limit     *int
}

// ConsumeResult reports the ledger state after an admission attempt.
type ConsumeResult struct {
	Admitted bool
	Count    int
	ResetAt  *time.Time
	Rolled   bool
}

// Consume applies one admission to the ledger and returns the new ledger
// value. Storage backends must perform the equivalent update atomically.
//
// An expired window is rolled over (count zeroed, reset moved to NextReset)
// even when the request is then denied. A denial leaves the count and an
// unset reset time untouched.
func (l UsageLedger) Consume(req ConsumeRequest) (UsageLedger, ConsumeResult) {
	next := l
	rolled := req.NextReset != nil && l.ResetAt != nil && l.ResetAt.Before(req.Now)
	if rolled {
		next.Count = 0
		reset := *req.NextReset
		next.ResetAt = &reset
	}
	admitted := req.Limit == nil || next.Count < *req.Limit
	if admitted {
		next.Count++
		if next.ResetAt == nil && req.NextReset != nil {
			reset := *req.NextReset
			next.ResetAt = &reset
		}
	}
	if admitted || rolled {
		next.UpdatedAt = req.Now
	}
	return next, ConsumeResult{
		Admitted: admitted,
		Count:    next.Count,
		ResetAt:  next.ResetAt,
		Rolled:   rolled,
	}
}

// Effective returns the ledger as it would read at now without mutating
// storage: an expired window reads as zero usage.
func (l UsageLedger) Effective(now time.Time, interval ResetInterval) UsageLedger {
	if interval == IntervalLifetime || l.ResetAt == nil || !l.ResetAt.Before(now) {
		return l
	}
	out := l
	out.Count = 0
	out.ResetAt = nil
	return out
}

// Admission is the outcome of a quota gate decision.
type Admission struct {
	UserID   string     `json:"user_id"`
	PlanID   string     `json:"plan_id"`
	Admitted bool       `json:"admitted"`
	Count    int        `json:"count"`
	Limit    *int       `json:"limit"`
	ResetAt  *time.Time `json:"reset_at"`
	Rolled   bool       `json:"-"`
}

// Remaining returns the number of admissions left in the window, or nil
// when the plan is unlimited.
func (a Admission) Remaining() *int {
	if a.Limit == nil {
		return nil
	}
	left := *a.Limit - a.Count
	if left < 0 {
		left = 0
	}
	return &left
}
