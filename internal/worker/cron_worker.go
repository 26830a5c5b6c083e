// Package worker runs the periodic scheduling sweep outside the HTTP
// request path.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"envelope/internal/core"
	"envelope/internal/services"
)

// CronWorker materializes due recurring expenses and sweeps budget
// alerts on a fixed interval. The sweep is idempotent, so overlapping
// deployments or a restart mid-interval never double-book an expense.
type CronWorker struct {
	recurring *services.RecurringProcessor
	budgets   *services.BudgetService
	interval  time.Duration
}

func NewCronWorker(recurring *services.RecurringProcessor, budgets *services.BudgetService, interval time.Duration) *CronWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CronWorker{
		recurring: recurring,
		budgets:   budgets,
		interval:  interval,
	}
}

// RunOnce performs a single sweep for the given reference date.
func (w *CronWorker) RunOnce(ctx context.Context, today core.Date) (created, alerts int, err error) {
	created, err = w.recurring.ProcessDueBatch(ctx, today)
	if err != nil {
		return 0, 0, fmt.Errorf("process due batch: %w", err)
	}
	alerts, err = w.budgets.CheckAlerts(ctx, core.PeriodOf(today.Time))
	if err != nil {
		return created, 0, fmt.Errorf("check alerts: %w", err)
	}
	return created, alerts, nil
}

// Run sweeps immediately, then on every tick until the context is
// cancelled.
func (w *CronWorker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Cron worker started", "interval", w.interval)

	w.sweep(ctx, time.Now())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Cron worker stopped")
			return ctx.Err()
		case now := <-ticker.C:
			w.sweep(ctx, now)
		}
	}
}

func (w *CronWorker) sweep(ctx context.Context, now time.Time) {
	today := core.DateOf(now)
	created, alerts, err := w.RunOnce(ctx, today)
	if err != nil {
		slog.ErrorContext(ctx, "Sweep failed", "date", today.String(), "error", err)
		return
	}
	slog.InfoContext(ctx, "Sweep complete",
		"date", today.String(),
		"expenses_created", created,
		"alerts_raised", alerts)
}
