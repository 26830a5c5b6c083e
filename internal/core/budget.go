package core

import "time"

// WarningThreshold is the utilization percentage at which a budget is
// flagged as a warning (unless it is already over the limit).
const WarningThreshold = 80.0

// Period is a calendar month window supplied by the caller; the engine
// never decides the period boundary itself.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the calendar month containing t (UTC).
func PeriodOf(t time.Time) Period {
	y, m, _ := t.UTC().Date()
	return Period{Year: y, Month: m}
}

func (p Period) String() string {
	return NewDate(p.Year, p.Month, 1).Format("2006-01")
}

// BudgetStatus is derived utilization for one limit, never persisted.
type BudgetStatus struct {
	Limit       *Money  `json:"limit"` // nil means unlimited
	Spent       Money   `json:"spent"`
	Percentage  float64 `json:"percentage"`
	IsWarning   bool    `json:"is_warning"`
	IsOverLimit bool    `json:"is_over_limit"`
}

// CategoryBudgetStatus pairs a category with its status.
type CategoryBudgetStatus struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	BudgetStatus
}

// BudgetReport is the full answer to a budget query: the overall status
// plus one independent status per limited category.
type BudgetReport struct {
	Period     string                 `json:"period"`
	Overall    BudgetStatus           `json:"overall"`
	Categories []CategoryBudgetStatus `json:"categories"`
}

// ComputeStatus derives the utilization of spent against limit.
//
// The percentage is deliberately not clamped at 100: the raw value
// backs the over-limit flag, and clamping for progress bars is the
// UI's business. A nil limit means unbounded: percentage 0, no flags.
func ComputeStatus(limit *Money, spent Money) BudgetStatus {
	st := BudgetStatus{Limit: limit, Spent: spent}
	if limit == nil || limit.Cents <= 0 {
		return st
	}
	st.Percentage = float64(spent.Cents) / float64(limit.Cents) * 100
	st.IsOverLimit = spent.Cents > limit.Cents
	st.IsWarning = st.Percentage >= WarningThreshold && !st.IsOverLimit
	return st
}
