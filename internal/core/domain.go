package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly Frequency = "monthly"
	Weekly  Frequency = "weekly"
	Yearly  Frequency = "yearly"
)

type (
	Frequency string

	// Date is a calendar day at UTC midnight. The engine never cares
	// about time-of-day; all cadence arithmetic works on whole days.
	Date struct {
		time.Time
	}

	// Jar is a percentage-allocated sub-account of an owner's funds.
	Jar struct {
		ID         int64
		OwnerID    int64
		Name       string
		Percentage float64 // 0..100
		Balance    Money
		Active     bool
	}

	// Transfer is an immutable journal entry for a jar-to-jar movement.
	Transfer struct {
		ID        int64
		OwnerID   int64
		FromJarID int64
		ToJarID   int64
		Amount    Money
		Note      string
		Timestamp time.Time
	}

	Category struct {
		ID           int64
		OwnerID      int64
		Name         string
		MonthlyLimit *Money // nil means unlimited
	}

	Expense struct {
		ID          int64
		OwnerID     int64
		CategoryID  int64
		Amount      Money
		Date        Date
		Description string
		RecurringID *int64 // set when materialized from a template
	}

	// RecurringExpense is a template that deterministically produces
	// concrete expenses on its cadence. NextDue is zero once the
	// template has ended.
	RecurringExpense struct {
		ID          int64
		OwnerID     int64
		CategoryID  int64
		Amount      Money
		Description string
		Frequency   Frequency
		DayOfMonth  *int // 1..31, required iff monthly
		DayOfWeek   *int // 0..6, Monday=0, required iff weekly
		StartDate   Date
		EndDate     Date // zero means open-ended
		IsActive    bool
		NextDue     Date // zero means ended
		LastCreated Date // zero means never materialized
	}
)

// Error taxonomy. Validation errors wrap ErrValidation so callers can
// classify them with errors.Is without enumerating every sentinel.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyMaterialized = errors.New("occurrence already materialized")
	ErrInvariant           = errors.New("domain invariant violation")

	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrSameJar            = fmt.Errorf("%w: source and destination jar are the same", ErrValidation)
	ErrInvalidPercentage  = fmt.Errorf("%w: percentage must be between 0 and 100", ErrValidation)
	ErrAllocationExceeded = fmt.Errorf("%w: jar percentages would exceed 100", ErrValidation)
	ErrAllocationNotFull  = fmt.Errorf("%w: jar percentages must sum to exactly 100", ErrValidation)
	ErrEmptyName          = fmt.Errorf("%w: empty name", ErrValidation)
	ErrEmptyDescription   = fmt.Errorf("%w: empty description", ErrValidation)
	ErrInvalidFrequency   = fmt.Errorf("%w: invalid frequency", ErrValidation)
	ErrMissingDayOfMonth  = fmt.Errorf("%w: day_of_month is required for monthly frequency", ErrValidation)
	ErrMissingDayOfWeek   = fmt.Errorf("%w: day_of_week is required for weekly frequency", ErrValidation)
	ErrUnexpectedDayField = fmt.Errorf("%w: day field not allowed for this frequency", ErrValidation)
	ErrInvalidDayOfMonth  = fmt.Errorf("%w: day_of_month must be between 1 and 31", ErrValidation)
	ErrInvalidDayOfWeek   = fmt.Errorf("%w: day_of_week must be between 0 (Monday) and 6 (Sunday)", ErrValidation)
	ErrEndBeforeStart     = fmt.Errorf("%w: end date must not be before start date", ErrValidation)
	ErrMissingStartDate   = fmt.Errorf("%w: start date is required", ErrValidation)
	ErrTemplateInactive   = fmt.Errorf("%w: template is not active", ErrValidation)
	ErrTemplateEnded      = fmt.Errorf("%w: template has no upcoming due date", ErrValidation)
)

// NewDate creates a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return Date{Time: t.UTC()}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// AddDays returns the date shifted by n whole days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// WeekdayMon returns the day of week with Monday=0 .. Sunday=6, the
// indexing recurring templates use.
func (d Date) WeekdayMon() int {
	return (int(d.Time.Weekday()) + 6) % 7
}

func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Weekly, Yearly:
		return true
	}
	return false
}

func (j Jar) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return ErrEmptyName
	}
	if len(j.Name) > 100 {
		return fmt.Errorf("%w: name too long (max 100 characters)", ErrValidation)
	}
	if j.Percentage < 0 || j.Percentage > 100 {
		return ErrInvalidPercentage
	}
	if j.Balance.Cents < 0 {
		return fmt.Errorf("%w: negative jar balance", ErrInvariant)
	}
	return nil
}

// BasisPoints returns the jar's percentage in integer basis points
// (55.25% -> 5525) so split arithmetic stays in exact integer math.
func (j Jar) BasisPoints() int64 {
	return int64(j.Percentage*100 + 0.5)
}

func (t Transfer) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.FromJarID == t.ToJarID {
		return ErrSameJar
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 500 {
		return fmt.Errorf("%w: description too long (max 500 characters)", ErrValidation)
	}
	if e.Date.IsZero() {
		return ErrMissingStartDate
	}
	return nil
}

// Validate checks the template including its frequency-tagged payload:
// day_of_month belongs to monthly, day_of_week to weekly, yearly
// carries neither (the anniversary comes from the start date).
func (re RecurringExpense) Validate() error {
	if err := re.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(re.Description) > 500 {
		return fmt.Errorf("%w: description too long (max 500 characters)", ErrValidation)
	}
	if !re.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if re.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if !re.EndDate.IsZero() && re.EndDate.Before(re.StartDate) {
		return ErrEndBeforeStart
	}

	switch re.Frequency {
	case Monthly:
		if re.DayOfMonth == nil {
			return ErrMissingDayOfMonth
		}
		if *re.DayOfMonth < 1 || *re.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
		if re.DayOfWeek != nil {
			return ErrUnexpectedDayField
		}
	case Weekly:
		if re.DayOfWeek == nil {
			return ErrMissingDayOfWeek
		}
		if *re.DayOfWeek < 0 || *re.DayOfWeek > 6 {
			return ErrInvalidDayOfWeek
		}
		if re.DayOfMonth != nil {
			return ErrUnexpectedDayField
		}
	case Yearly:
		if re.DayOfMonth != nil || re.DayOfWeek != nil {
			return ErrUnexpectedDayField
		}
	}
	return nil
}
