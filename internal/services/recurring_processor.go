package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"envelope/internal/amqp"
	"envelope/internal/core"
	"envelope/internal/storage"
)

const defaultBatchConcurrency = 4

// RecurringProcessor manages recurring expense templates and turns due
// templates into concrete expenses, exactly once per due date.
type RecurringProcessor struct {
	storage     *storage.SQLiteRepository
	amqpClient  *amqp.Client
	concurrency int
}

func NewRecurringProcessor(storage *storage.SQLiteRepository, amqpClient *amqp.Client, concurrency int) *RecurringProcessor {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &RecurringProcessor{
		storage:     storage,
		amqpClient:  amqpClient,
		concurrency: concurrency,
	}
}

// CreateTemplate validates and stores a template, seeding its next due
// date with the first occurrence on or after the start date.
func (p *RecurringProcessor) CreateTemplate(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	re.IsActive = true
	re.NextDue = core.Date{}
	re.LastCreated = core.Date{}
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	if _, err := p.storage.GetCategory(ctx, re.OwnerID, re.CategoryID); err != nil {
		return core.RecurringExpense{}, err
	}

	first, err := InitialDueDate(re)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	re.NextDue = first

	created, err := p.storage.CreateRecurring(ctx, re)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create recurring expense: %w", err)
	}
	slog.InfoContext(ctx, "Created recurring expense template",
		"owner_id", created.OwnerID, "recurring_id", created.ID, "next_due", created.NextDue.String())
	return created, nil
}

// UpdateTemplate rewrites a template and recomputes its schedule: the
// next due date becomes the first occurrence on or after today (or the
// start date, whichever is later).
func (p *RecurringProcessor) UpdateTemplate(ctx context.Context, re core.RecurringExpense, today core.Date) (core.RecurringExpense, error) {
	existing, err := p.storage.GetRecurring(ctx, re.OwnerID, re.ID)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	re.IsActive = existing.IsActive
	re.LastCreated = existing.LastCreated
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.CategoryID != existing.CategoryID {
		if _, err := p.storage.GetCategory(ctx, re.OwnerID, re.CategoryID); err != nil {
			return core.RecurringExpense{}, err
		}
	}

	ref := today.AddDays(-1)
	if ref.Before(re.StartDate.AddDays(-1)) {
		ref = re.StartDate.AddDays(-1)
	}
	next, err := NextDueDate(re, ref)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	re.NextDue = next

	if err := p.storage.UpdateRecurring(ctx, re); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("update recurring expense: %w", err)
	}
	return re, nil
}

func (p *RecurringProcessor) GetTemplate(ctx context.Context, ownerID, id int64) (core.RecurringExpense, error) {
	return p.storage.GetRecurring(ctx, ownerID, id)
}

func (p *RecurringProcessor) ListTemplates(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error) {
	return p.storage.ListRecurring(ctx, ownerID)
}

func (p *RecurringProcessor) DeactivateTemplate(ctx context.Context, ownerID, id int64) error {
	return p.storage.DeactivateRecurring(ctx, ownerID, id)
}

// Materialize turns the template's pending due date into an expense
// and advances the schedule. Replays surface ErrAlreadyMaterialized
// and leave no second expense behind.
func (p *RecurringProcessor) Materialize(ctx context.Context, re core.RecurringExpense) (core.Expense, error) {
	if !re.IsActive {
		return core.Expense{}, core.ErrTemplateInactive
	}
	if re.NextDue.IsZero() {
		return core.Expense{}, core.ErrTemplateEnded
	}

	next, err := NextDueDate(re, re.NextDue)
	if err != nil {
		return core.Expense{}, err
	}

	expense, err := p.storage.MaterializeOccurrence(ctx, re, next)
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Materialized recurring expense",
		"owner_id", re.OwnerID,
		"recurring_id", re.ID,
		"expense_id", expense.ID,
		"due_date", expense.Date.String())
	p.publishMaterialized(ctx, re, expense)
	return expense, nil
}

// CreateExpenseNow is the manual trigger: it materializes the
// template's pending occurrence regardless of whether it is due yet.
func (p *RecurringProcessor) CreateExpenseNow(ctx context.Context, ownerID, id int64) (core.Expense, error) {
	re, err := p.storage.GetRecurring(ctx, ownerID, id)
	if err != nil {
		return core.Expense{}, err
	}
	return p.Materialize(ctx, re)
}

// ProcessDueBatch materializes every pending occurrence up to today
// across all owners, catching up templates that are several periods
// behind. Templates are processed concurrently with a bounded pool;
// one template failing never stops the others. Returns the number of
// expenses created.
func (p *RecurringProcessor) ProcessDueBatch(ctx context.Context, today core.Date) (int, error) {
	templates, err := p.storage.ListDueRecurring(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due templates: %w", err)
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, tpl := range templates {
		g.Go(func() error {
			n, err := p.catchUp(gctx, tpl, today)
			created.Add(int64(n))
			if err != nil {
				slog.ErrorContext(gctx, "Failed to process due template",
					"owner_id", tpl.OwnerID, "recurring_id", tpl.ID, "error", err)
			}
			// Failures are isolated per template.
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "Processed due templates",
		"templates", len(templates), "created", created.Load())
	return int(created.Load()), nil
}

// catchUp materializes the template's occurrences one by one until it
// is no longer due. Losing the compare-and-set to a concurrent run is
// a clean stop, not an error.
func (p *RecurringProcessor) catchUp(ctx context.Context, re core.RecurringExpense, today core.Date) (int, error) {
	created := 0
	for IsDue(re, today) {
		next, err := NextDueDate(re, re.NextDue)
		if err != nil {
			return created, err
		}
		if _, err := p.Materialize(ctx, re); err != nil {
			if errors.Is(err, core.ErrAlreadyMaterialized) {
				return created, nil
			}
			return created, err
		}
		created++
		re.LastCreated = re.NextDue
		re.NextDue = next
	}
	return created, nil
}

func (p *RecurringProcessor) publishMaterialized(ctx context.Context, re core.RecurringExpense, expense core.Expense) {
	if p.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping materialization event")
		return
	}
	msg := amqp.NewExpenseMaterializedMessage(amqp.ExpenseMaterializedPayload{
		OwnerID:     re.OwnerID,
		RecurringID: re.ID,
		ExpenseID:   expense.ID,
		AmountCents: expense.Amount.Cents,
		DueDate:     expense.Date.String(),
	})
	if err := p.amqpClient.Publish(ctx, msg); err != nil {
		// The expense is committed either way; the event is best
		// effort.
		slog.ErrorContext(ctx, "Failed to publish materialization event",
			"recurring_id", re.ID, "expense_id", expense.ID, "error", err)
	}
}
