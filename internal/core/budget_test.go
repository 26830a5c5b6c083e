package core

import "testing"

func TestComputeStatus(t *testing.T) {
	limit := func(cents int64) *Money { return &Money{Cents: cents} }

	tests := []struct {
		name            string
		limit           *Money
		spent           int64
		wantPercentage  float64
		wantWarning     bool
		wantOverLimit   bool
	}{
		{
			name:           "at 85 percent - warning",
			limit:          limit(1000000),
			spent:          850000,
			wantPercentage: 85.0,
			wantWarning:    true,
		},
		{
			name:           "one cent over - over limit, not warning",
			limit:          limit(1000000),
			spent:          1000001,
			wantPercentage: 100.0001,
			wantOverLimit:  true,
		},
		{
			name:           "no limit - unbounded",
			limit:          nil,
			spent:          850000,
			wantPercentage: 0,
		},
		{
			name:           "below threshold - no flags",
			limit:          limit(1000000),
			spent:          790000,
			wantPercentage: 79.0,
		},
		{
			name:           "exactly at limit - warning, not over",
			limit:          limit(1000000),
			spent:          1000000,
			wantPercentage: 100.0,
			wantWarning:    true,
		},
		{
			name:           "zero spent",
			limit:          limit(1000000),
			spent:          0,
			wantPercentage: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(tt.limit, Money{Cents: tt.spent})
			if diff := got.Percentage - tt.wantPercentage; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("Percentage = %v, want %v", got.Percentage, tt.wantPercentage)
			}
			if got.IsWarning != tt.wantWarning {
				t.Errorf("IsWarning = %v, want %v", got.IsWarning, tt.wantWarning)
			}
			if got.IsOverLimit != tt.wantOverLimit {
				t.Errorf("IsOverLimit = %v, want %v", got.IsOverLimit, tt.wantOverLimit)
			}
			if got.Spent.Cents != tt.spent {
				t.Errorf("Spent = %d, want %d", got.Spent.Cents, tt.spent)
			}
		})
	}
}

func TestComputeStatusPercentageUnclamped(t *testing.T) {
	got := ComputeStatus(&Money{Cents: 100000}, Money{Cents: 250000})
	if got.Percentage != 250.0 {
		t.Errorf("Percentage = %v, want 250 (raw value must be retained)", got.Percentage)
	}
	if !got.IsOverLimit || got.IsWarning {
		t.Errorf("flags = (over=%v, warning=%v), want (true, false)", got.IsOverLimit, got.IsWarning)
	}
}
