package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"envelope/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedJar(t *testing.T, repo *SQLiteRepository, ownerID int64, name string, pct float64, cents int64) core.Jar {
	t.Helper()
	jar, err := repo.CreateJar(context.Background(), core.Jar{
		OwnerID:    ownerID,
		Name:       name,
		Percentage: pct,
		Balance:    core.Money{Cents: cents},
	})
	if err != nil {
		t.Fatalf("CreateJar(%s) error = %v", name, err)
	}
	return jar
}

func seedCategory(t *testing.T, repo *SQLiteRepository, ownerID int64, name string, limit *core.Money) core.Category {
	t.Helper()
	c, err := repo.CreateCategory(context.Background(), core.Category{
		OwnerID:      ownerID,
		Name:         name,
		MonthlyLimit: limit,
	})
	if err != nil {
		t.Fatalf("CreateCategory(%s) error = %v", name, err)
	}
	return c
}

func TestCreateJarAllocationCap(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedJar(t, repo, 1, "Necessities", 55, 0)
	seedJar(t, repo, 1, "Savings", 30, 0)

	_, err := repo.CreateJar(ctx, core.Jar{OwnerID: 1, Name: "Play", Percentage: 20})
	if !errors.Is(err, core.ErrAllocationExceeded) {
		t.Fatalf("CreateJar() error = %v, want ErrAllocationExceeded", err)
	}

	// Exactly filling the remainder is fine.
	if _, err := repo.CreateJar(ctx, core.Jar{OwnerID: 1, Name: "Play", Percentage: 15}); err != nil {
		t.Fatalf("CreateJar() error = %v", err)
	}

	// Another owner has an independent allocation.
	if _, err := repo.CreateJar(ctx, core.Jar{OwnerID: 2, Name: "Everything", Percentage: 100}); err != nil {
		t.Fatalf("CreateJar() for second owner error = %v", err)
	}
}

func TestUpdateJarAllocationExcludesSelf(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	jar := seedJar(t, repo, 1, "Necessities", 60, 0)
	seedJar(t, repo, 1, "Savings", 40, 0)

	// Raising the jar's own share within the cap counts only the
	// other jars against it.
	jar.Percentage = 55
	updated, err := repo.UpdateJar(ctx, jar)
	if err != nil {
		t.Fatalf("UpdateJar() error = %v", err)
	}
	if updated.Percentage != 55 {
		t.Errorf("Percentage = %v, want 55", updated.Percentage)
	}

	jar.Percentage = 61
	if _, err := repo.UpdateJar(ctx, jar); !errors.Is(err, core.ErrAllocationExceeded) {
		t.Errorf("UpdateJar() error = %v, want ErrAllocationExceeded", err)
	}
}

func TestDeactivateJarFreesAllocation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	jar := seedJar(t, repo, 1, "Necessities", 80, 500)
	seedJar(t, repo, 1, "Savings", 20, 0)

	if err := repo.DeactivateJar(ctx, 1, jar.ID); err != nil {
		t.Fatalf("DeactivateJar() error = %v", err)
	}

	// Inactive percentages no longer count toward the cap, but the
	// balance stays on record.
	if _, err := repo.CreateJar(ctx, core.Jar{OwnerID: 1, Name: "Play", Percentage: 80}); err != nil {
		t.Fatalf("CreateJar() after deactivation error = %v", err)
	}
	got, err := repo.GetJar(ctx, 1, jar.ID)
	if err != nil {
		t.Fatalf("GetJar() error = %v", err)
	}
	if got.Active {
		t.Error("jar still active after DeactivateJar")
	}
	if got.Balance.Cents != 500 {
		t.Errorf("balance = %d, want 500 preserved", got.Balance.Cents)
	}

	if err := repo.DeactivateJar(ctx, 1, jar.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeactivateJar() error = %v, want ErrNotFound", err)
	}
}

func TestTransferFundsConservation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	from := seedJar(t, repo, 1, "Savings", 50, 10000)
	to := seedJar(t, repo, 1, "Play", 50, 2500)

	tr, err := repo.TransferFunds(ctx, core.Transfer{
		OwnerID:   1,
		FromJarID: from.ID,
		ToJarID:   to.ID,
		Amount:    core.Money{Cents: 3000},
		Note:      "fun money",
	})
	if err != nil {
		t.Fatalf("TransferFunds() error = %v", err)
	}
	if tr.ID == 0 {
		t.Error("transfer ID not assigned")
	}

	gotFrom, _ := repo.GetJar(ctx, 1, from.ID)
	gotTo, _ := repo.GetJar(ctx, 1, to.ID)
	if gotFrom.Balance.Cents != 7000 {
		t.Errorf("source balance = %d, want 7000", gotFrom.Balance.Cents)
	}
	if gotTo.Balance.Cents != 5500 {
		t.Errorf("destination balance = %d, want 5500", gotTo.Balance.Cents)
	}
	if total := gotFrom.Balance.Cents + gotTo.Balance.Cents; total != 12500 {
		t.Errorf("total balance = %d, want 12500 (conservation)", total)
	}

	transfers, err := repo.ListTransfers(ctx, 1)
	if err != nil {
		t.Fatalf("ListTransfers() error = %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("len(transfers) = %d, want 1", len(transfers))
	}
	if transfers[0].Note != "fun money" {
		t.Errorf("note = %q, want %q", transfers[0].Note, "fun money")
	}
}

func TestTransferFundsInsufficientLeavesStateUnchanged(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	from := seedJar(t, repo, 1, "Savings", 50, 100)
	to := seedJar(t, repo, 1, "Play", 50, 0)

	_, err := repo.TransferFunds(ctx, core.Transfer{
		OwnerID: 1, FromJarID: from.ID, ToJarID: to.ID, Amount: core.Money{Cents: 101},
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("TransferFunds() error = %v, want ErrInsufficientFunds", err)
	}

	gotFrom, _ := repo.GetJar(ctx, 1, from.ID)
	gotTo, _ := repo.GetJar(ctx, 1, to.ID)
	if gotFrom.Balance.Cents != 100 || gotTo.Balance.Cents != 0 {
		t.Errorf("balances = %d/%d, want 100/0 unchanged", gotFrom.Balance.Cents, gotTo.Balance.Cents)
	}
	transfers, _ := repo.ListTransfers(ctx, 1)
	if len(transfers) != 0 {
		t.Errorf("len(transfers) = %d, want 0 (no journal entry on failure)", len(transfers))
	}
}

func TestTransferFundsUnknownJar(t *testing.T) {
	repo := newTestRepo(t)
	from := seedJar(t, repo, 1, "Savings", 50, 1000)

	_, err := repo.TransferFunds(context.Background(), core.Transfer{
		OwnerID: 1, FromJarID: from.ID, ToJarID: 999, Amount: core.Money{Cents: 10},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("TransferFunds() error = %v, want ErrNotFound", err)
	}
}

func TestDepositShares(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := seedJar(t, repo, 1, "Necessities", 55, 0)
	b := seedJar(t, repo, 1, "Savings", 45, 100)

	err := repo.DepositShares(ctx, 1, []core.JarShare{
		{JarID: a.ID, Amount: core.Money{Cents: 5500}},
		{JarID: b.ID, Amount: core.Money{Cents: 4500}},
	})
	if err != nil {
		t.Fatalf("DepositShares() error = %v", err)
	}

	gotA, _ := repo.GetJar(ctx, 1, a.ID)
	gotB, _ := repo.GetJar(ctx, 1, b.ID)
	if gotA.Balance.Cents != 5500 || gotB.Balance.Cents != 4600 {
		t.Errorf("balances = %d/%d, want 5500/4600", gotA.Balance.Cents, gotB.Balance.Cents)
	}
}

func TestDepositSharesUnknownJarAborts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := seedJar(t, repo, 1, "Necessities", 55, 0)

	err := repo.DepositShares(ctx, 1, []core.JarShare{
		{JarID: a.ID, Amount: core.Money{Cents: 5500}},
		{JarID: 999, Amount: core.Money{Cents: 4500}},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("DepositShares() error = %v, want ErrNotFound", err)
	}
	got, _ := repo.GetJar(ctx, 1, a.ID)
	if got.Balance.Cents != 0 {
		t.Errorf("balance = %d, want 0 (whole deposit rolled back)", got.Balance.Cents)
	}
}

func TestMonthlySpendWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat := seedCategory(t, repo, 1, "Groceries", nil)

	for _, e := range []struct {
		date  string
		cents int64
	}{
		{"2024-02-29", 1000}, // last day of the month, inside
		{"2024-03-01", 2000},
		{"2024-03-31", 3000},
		{"2024-04-01", 4000}, // next month, outside
	} {
		d, _ := core.ParseDate(e.date)
		if _, err := repo.CreateExpense(ctx, core.Expense{
			OwnerID: 1, CategoryID: cat.ID, Amount: core.Money{Cents: e.cents},
			Date: d, Description: "groceries",
		}); err != nil {
			t.Fatalf("CreateExpense(%s) error = %v", e.date, err)
		}
	}

	spent, err := repo.MonthlySpend(ctx, 1, core.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("MonthlySpend() error = %v", err)
	}
	if spent.Cents != 5000 {
		t.Errorf("MonthlySpend() = %d, want 5000", spent.Cents)
	}

	byCat, err := repo.MonthlySpendByCategory(ctx, 1, core.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("MonthlySpendByCategory() error = %v", err)
	}
	if byCat[cat.ID].Cents != 5000 {
		t.Errorf("category spend = %d, want 5000", byCat[cat.ID].Cents)
	}
}

func TestOverallLimitRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	limit, err := repo.GetOverallLimit(ctx, 1)
	if err != nil {
		t.Fatalf("GetOverallLimit() error = %v", err)
	}
	if limit != nil {
		t.Errorf("limit = %v, want nil for unset owner", limit)
	}

	if err := repo.SetOverallLimit(ctx, 1, &core.Money{Cents: 100000}); err != nil {
		t.Fatalf("SetOverallLimit() error = %v", err)
	}
	limit, err = repo.GetOverallLimit(ctx, 1)
	if err != nil {
		t.Fatalf("GetOverallLimit() error = %v", err)
	}
	if limit == nil || limit.Cents != 100000 {
		t.Errorf("limit = %v, want 100000", limit)
	}

	// Clearing the limit leaves the row but nulls the value.
	if err := repo.SetOverallLimit(ctx, 1, nil); err != nil {
		t.Fatalf("SetOverallLimit(nil) error = %v", err)
	}
	limit, _ = repo.GetOverallLimit(ctx, 1)
	if limit != nil {
		t.Errorf("limit = %v, want nil after clearing", limit)
	}
}

func seedTemplate(t *testing.T, repo *SQLiteRepository, ownerID, categoryID int64, nextDue string) core.RecurringExpense {
	t.Helper()
	day := 15
	due, _ := core.ParseDate(nextDue)
	re, err := repo.CreateRecurring(context.Background(), core.RecurringExpense{
		OwnerID:     ownerID,
		CategoryID:  categoryID,
		Amount:      core.Money{Cents: 2500},
		Description: "Streaming",
		Frequency:   core.Monthly,
		DayOfMonth:  &day,
		StartDate:   core.NewDate(2024, time.January, 15),
		IsActive:    true,
		NextDue:     due,
	})
	if err != nil {
		t.Fatalf("CreateRecurring() error = %v", err)
	}
	return re
}

func TestRecurringRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat := seedCategory(t, repo, 1, "Subscriptions", nil)

	re := seedTemplate(t, repo, 1, cat.ID, "2024-03-15")

	got, err := repo.GetRecurring(ctx, 1, re.ID)
	if err != nil {
		t.Fatalf("GetRecurring() error = %v", err)
	}
	if got.NextDue.String() != "2024-03-15" {
		t.Errorf("NextDue = %s, want 2024-03-15", got.NextDue)
	}
	if got.DayOfMonth == nil || *got.DayOfMonth != 15 {
		t.Errorf("DayOfMonth = %v, want 15", got.DayOfMonth)
	}
	if !got.EndDate.IsZero() || !got.LastCreated.IsZero() {
		t.Errorf("EndDate/LastCreated should be zero, got %s/%s", got.EndDate, got.LastCreated)
	}

	if _, err := repo.GetRecurring(ctx, 2, re.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetRecurring() cross-owner error = %v, want ErrNotFound", err)
	}
}

func TestListDueRecurring(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat := seedCategory(t, repo, 1, "Subscriptions", nil)

	due := seedTemplate(t, repo, 1, cat.ID, "2024-03-10")    // overdue
	dueToday := seedTemplate(t, repo, 1, cat.ID, "2024-03-15") // due today
	seedTemplate(t, repo, 1, cat.ID, "2024-03-16")             // future

	inactive := seedTemplate(t, repo, 1, cat.ID, "2024-03-01")
	if err := repo.DeactivateRecurring(ctx, 1, inactive.ID); err != nil {
		t.Fatalf("DeactivateRecurring() error = %v", err)
	}

	today := core.NewDate(2024, time.March, 15)
	templates, err := repo.ListDueRecurring(ctx, today)
	if err != nil {
		t.Fatalf("ListDueRecurring() error = %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(templates))
	}
	if templates[0].ID != due.ID || templates[1].ID != dueToday.ID {
		t.Errorf("due IDs = %d,%d, want %d,%d", templates[0].ID, templates[1].ID, due.ID, dueToday.ID)
	}
}

func TestMaterializeOccurrenceExactlyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat := seedCategory(t, repo, 1, "Subscriptions", nil)
	re := seedTemplate(t, repo, 1, cat.ID, "2024-03-15")

	next := core.NewDate(2024, time.April, 15)
	expense, err := repo.MaterializeOccurrence(ctx, re, next)
	if err != nil {
		t.Fatalf("MaterializeOccurrence() error = %v", err)
	}
	if expense.Date.String() != "2024-03-15" {
		t.Errorf("expense date = %s, want 2024-03-15 (the due date, not today)", expense.Date)
	}
	if expense.RecurringID == nil || *expense.RecurringID != re.ID {
		t.Errorf("RecurringID = %v, want %d", expense.RecurringID, re.ID)
	}

	// Replaying the same occurrence loses the compare-and-set.
	if _, err := repo.MaterializeOccurrence(ctx, re, next); !errors.Is(err, core.ErrAlreadyMaterialized) {
		t.Fatalf("second MaterializeOccurrence() error = %v, want ErrAlreadyMaterialized", err)
	}

	got, err := repo.GetRecurring(ctx, 1, re.ID)
	if err != nil {
		t.Fatalf("GetRecurring() error = %v", err)
	}
	if got.NextDue.String() != "2024-04-15" {
		t.Errorf("NextDue = %s, want 2024-04-15", got.NextDue)
	}
	if got.LastCreated.String() != "2024-03-15" {
		t.Errorf("LastCreated = %s, want 2024-03-15", got.LastCreated)
	}

	spent, _ := repo.MonthlySpend(ctx, 1, core.Period{Year: 2024, Month: time.March})
	if spent.Cents != 2500 {
		t.Errorf("march spend = %d, want 2500 (single expense)", spent.Cents)
	}
}

func TestMaterializeOccurrenceFinalAdvancesToEnded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cat := seedCategory(t, repo, 1, "Subscriptions", nil)
	re := seedTemplate(t, repo, 1, cat.ID, "2024-03-15")

	// A zero next date marks the template as ended.
	if _, err := repo.MaterializeOccurrence(ctx, re, core.Date{}); err != nil {
		t.Fatalf("MaterializeOccurrence() error = %v", err)
	}

	got, _ := repo.GetRecurring(ctx, 1, re.ID)
	if !got.NextDue.IsZero() {
		t.Errorf("NextDue = %s, want zero (ended)", got.NextDue)
	}

	templates, _ := repo.ListDueRecurring(ctx, core.NewDate(2030, time.January, 1))
	if len(templates) != 0 {
		t.Errorf("ended template still listed as due")
	}
}

func TestListOwnerIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedJar(t, repo, 1, "Savings", 10, 0)
	seedCategory(t, repo, 2, "Groceries", nil)
	if err := repo.SetOverallLimit(ctx, 3, &core.Money{Cents: 1}); err != nil {
		t.Fatalf("SetOverallLimit() error = %v", err)
	}

	owners, err := repo.ListOwnerIDs(ctx)
	if err != nil {
		t.Fatalf("ListOwnerIDs() error = %v", err)
	}
	if len(owners) != 3 || owners[0] != 1 || owners[1] != 2 || owners[2] != 3 {
		t.Errorf("owners = %v, want [1 2 3]", owners)
	}
}
