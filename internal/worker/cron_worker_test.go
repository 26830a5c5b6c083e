package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"envelope/internal/core"
	"envelope/internal/services"
	"envelope/internal/storage"
)

func newTestWorker(t *testing.T) (*CronWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewCronWorker(
		services.NewRecurringProcessor(repo, nil, 2),
		services.NewBudgetService(repo, nil),
		time.Hour,
	), repo
}

func TestRunOnceSweepIsIdempotent(t *testing.T) {
	w, repo := newTestWorker(t)
	ctx := context.Background()

	cat, err := repo.CreateCategory(ctx, core.Category{OwnerID: 1, Name: "Rent"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	day := 1
	_, err = repo.CreateRecurring(ctx, core.RecurringExpense{
		OwnerID:     1,
		CategoryID:  cat.ID,
		Amount:      core.Money{Cents: 95000},
		Description: "Rent",
		Frequency:   core.Monthly,
		DayOfMonth:  &day,
		StartDate:   core.NewDate(2024, time.January, 1),
		NextDue:     core.NewDate(2024, time.January, 1),
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("CreateRecurring() error = %v", err)
	}

	created, _, err := w.RunOnce(ctx, core.NewDate(2024, time.February, 15))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	created, _, err = w.RunOnce(ctx, core.NewDate(2024, time.February, 15))
	if err != nil {
		t.Fatalf("RunOnce() rerun error = %v", err)
	}
	if created != 0 {
		t.Errorf("created on rerun = %d, want 0", created)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
