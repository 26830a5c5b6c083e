package services

import (
	"context"
	"testing"
	"time"

	"envelope/internal/core"
	"envelope/internal/storage"
)

func seedExpense(t *testing.T, repo *storage.SQLiteRepository, ownerID, categoryID int64, date string, cents int64) {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%s) error = %v", date, err)
	}
	if _, err := repo.CreateExpense(context.Background(), core.Expense{
		OwnerID: ownerID, CategoryID: categoryID, Amount: core.Money{Cents: cents},
		Date: d, Description: "seed",
	}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
}

func TestBudgetReport(t *testing.T) {
	repo := testRepo(t)
	svc := NewBudgetService(repo, nil)
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: time.March}

	if err := svc.SetOverallLimit(ctx, 1, &core.Money{Cents: 1000000}); err != nil {
		t.Fatalf("SetOverallLimit() error = %v", err)
	}
	groceries, err := repo.CreateCategory(ctx, core.Category{
		OwnerID: 1, Name: "Groceries", MonthlyLimit: &core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	misc, err := repo.CreateCategory(ctx, core.Category{OwnerID: 1, Name: "Misc"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}

	seedExpense(t, repo, 1, groceries.ID, "2024-03-10", 45000)
	seedExpense(t, repo, 1, misc.ID, "2024-03-12", 805000)
	seedExpense(t, repo, 1, misc.ID, "2024-04-01", 999999) // next month, excluded

	report, err := svc.Report(ctx, 1, march)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Period != "2024-03" {
		t.Errorf("Period = %q, want 2024-03", report.Period)
	}

	// Overall: 850000 of 1000000 = 85%, warning but not over.
	if report.Overall.Spent.Cents != 850000 {
		t.Errorf("overall spent = %d, want 850000", report.Overall.Spent.Cents)
	}
	if report.Overall.Percentage != 85 {
		t.Errorf("overall percentage = %v, want 85", report.Overall.Percentage)
	}
	if !report.Overall.IsWarning || report.Overall.IsOverLimit {
		t.Errorf("overall flags = warning %v over %v, want warning only",
			report.Overall.IsWarning, report.Overall.IsOverLimit)
	}

	// Only limited categories are reported; Misc has no limit.
	if len(report.Categories) != 1 {
		t.Fatalf("len(categories) = %d, want 1", len(report.Categories))
	}
	cat := report.Categories[0]
	if cat.CategoryID != groceries.ID || cat.Percentage != 90 || !cat.IsWarning {
		t.Errorf("category status = %+v, want groceries at 90%% warning", cat)
	}
}

func TestBudgetReportNoLimit(t *testing.T) {
	repo := testRepo(t)
	svc := NewBudgetService(repo, nil)
	ctx := context.Background()

	cat, _ := repo.CreateCategory(ctx, core.Category{OwnerID: 1, Name: "Misc"})
	seedExpense(t, repo, 1, cat.ID, "2024-03-10", 12345)

	report, err := svc.Report(ctx, 1, core.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Overall.Limit != nil {
		t.Errorf("overall limit = %v, want nil", report.Overall.Limit)
	}
	if report.Overall.Spent.Cents != 12345 {
		t.Errorf("spent = %d, want 12345 (tracked even without a limit)", report.Overall.Spent.Cents)
	}
	if report.Overall.Percentage != 0 || report.Overall.IsWarning || report.Overall.IsOverLimit {
		t.Errorf("status = %+v, want no percentage and no flags without a limit", report.Overall)
	}
}

func TestCheckAlerts(t *testing.T) {
	repo := testRepo(t)
	svc := NewBudgetService(repo, nil)
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: time.March}

	// Owner 1: over the overall limit and warning on a category.
	if err := svc.SetOverallLimit(ctx, 1, &core.Money{Cents: 10000}); err != nil {
		t.Fatalf("SetOverallLimit() error = %v", err)
	}
	cat, _ := repo.CreateCategory(ctx, core.Category{
		OwnerID: 1, Name: "Groceries", MonthlyLimit: &core.Money{Cents: 15000},
	})
	seedExpense(t, repo, 1, cat.ID, "2024-03-05", 13000)

	// Owner 2: comfortably under.
	if err := svc.SetOverallLimit(ctx, 2, &core.Money{Cents: 100000}); err != nil {
		t.Fatalf("SetOverallLimit() error = %v", err)
	}

	alerts, err := svc.CheckAlerts(ctx, march)
	if err != nil {
		t.Fatalf("CheckAlerts() error = %v", err)
	}
	// Owner 1 overall is over (13000 > 10000) and groceries is at
	// 86.7%, warning. Owner 2 raises nothing.
	if alerts != 2 {
		t.Errorf("alerts = %d, want 2", alerts)
	}
}
