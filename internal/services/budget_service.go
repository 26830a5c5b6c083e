package services

import (
	"context"
	"fmt"
	"log/slog"

	"envelope/internal/amqp"
	"envelope/internal/core"
	"envelope/internal/storage"
)

// BudgetService derives spend-vs-limit reports and raises threshold
// alerts. Reports are computed fresh from storage on every query;
// nothing derived is persisted.
type BudgetService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewBudgetService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *BudgetService {
	return &BudgetService{storage: storage, amqpClient: amqpClient}
}

// Report builds the owner's budget report for the period: the overall
// status plus one status per category that carries a limit.
func (s *BudgetService) Report(ctx context.Context, ownerID int64, period core.Period) (core.BudgetReport, error) {
	overallLimit, err := s.storage.GetOverallLimit(ctx, ownerID)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("load overall limit: %w", err)
	}
	spent, err := s.storage.MonthlySpend(ctx, ownerID, period)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("sum monthly spend: %w", err)
	}

	report := core.BudgetReport{
		Period:  period.String(),
		Overall: core.ComputeStatus(overallLimit, spent),
	}

	categories, err := s.storage.ListCategories(ctx, ownerID)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("list categories: %w", err)
	}
	byCategory, err := s.storage.MonthlySpendByCategory(ctx, ownerID, period)
	if err != nil {
		return core.BudgetReport{}, fmt.Errorf("sum category spend: %w", err)
	}

	for _, c := range categories {
		if c.MonthlyLimit == nil {
			continue
		}
		report.Categories = append(report.Categories, core.CategoryBudgetStatus{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			BudgetStatus: core.ComputeStatus(c.MonthlyLimit, byCategory[c.ID]),
		})
	}
	return report, nil
}

// SetOverallLimit sets or clears (nil) the owner's overall monthly
// limit.
func (s *BudgetService) SetOverallLimit(ctx context.Context, ownerID int64, limit *core.Money) error {
	if limit != nil {
		if err := limit.Validate(); err != nil {
			return err
		}
	}
	if err := s.storage.SetOverallLimit(ctx, ownerID, limit); err != nil {
		return fmt.Errorf("set overall limit: %w", err)
	}
	return nil
}

// CreateCategory adds an expense category, optionally with a monthly
// limit.
func (s *BudgetService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.Name == "" {
		return core.Category{}, core.ErrEmptyName
	}
	if c.MonthlyLimit != nil {
		if err := c.MonthlyLimit.Validate(); err != nil {
			return core.Category{}, err
		}
	}
	created, err := s.storage.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func (s *BudgetService) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, ownerID)
}

// SetCategoryLimit sets or clears (nil) a category's monthly limit.
func (s *BudgetService) SetCategoryLimit(ctx context.Context, ownerID, categoryID int64, limit *core.Money) error {
	if limit != nil {
		if err := limit.Validate(); err != nil {
			return err
		}
	}
	return s.storage.SetCategoryLimit(ctx, ownerID, categoryID, limit)
}

// CheckAlerts sweeps every owner's report for the period and publishes
// an event for each budget that is warning or over its limit. Returns
// the number of alerts raised.
func (s *BudgetService) CheckAlerts(ctx context.Context, period core.Period) (int, error) {
	owners, err := s.storage.ListOwnerIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	alerts := 0
	for _, ownerID := range owners {
		report, err := s.Report(ctx, ownerID, period)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to build budget report for alert sweep",
				"owner_id", ownerID, "error", err)
			continue
		}

		if report.Overall.IsWarning || report.Overall.IsOverLimit {
			s.publishAlert(ctx, ownerID, report.Period, 0, "", report.Overall)
			alerts++
		}
		for _, cat := range report.Categories {
			if cat.IsWarning || cat.IsOverLimit {
				s.publishAlert(ctx, ownerID, report.Period, cat.CategoryID, cat.CategoryName, cat.BudgetStatus)
				alerts++
			}
		}
	}
	return alerts, nil
}

func (s *BudgetService) publishAlert(ctx context.Context, ownerID int64, period string, categoryID int64, categoryName string, st core.BudgetStatus) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping budget alert",
			"owner_id", ownerID, "category_id", categoryID)
		return
	}

	var limitCents int64
	if st.Limit != nil {
		limitCents = st.Limit.Cents
	}
	msg := amqp.NewBudgetAlertMessage(amqp.BudgetAlertPayload{
		OwnerID:      ownerID,
		Period:       period,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		LimitCents:   limitCents,
		SpentCents:   st.Spent.Cents,
		Percentage:   st.Percentage,
		OverLimit:    st.IsOverLimit,
	})
	if err := s.amqpClient.Publish(ctx, msg); err != nil {
		// Alerting is best effort; the report itself is the source
		// of truth.
		slog.ErrorContext(ctx, "Failed to publish budget alert",
			"owner_id", ownerID, "category_id", categoryID, "error", err)
	}
}
