package services

import (
	"context"
	"fmt"
	"log/slog"

	"envelope/internal/core"
	"envelope/internal/storage"
)

// AllocationPolicy decides how strictly the jar percentages must cover
// the owner's income.
type AllocationPolicy string

const (
	// AtMost100 allows a partially allocated jar set; income splits
	// are normalized over whatever is allocated.
	AtMost100 AllocationPolicy = "at-most-100"
	// Exactly100 additionally requires a fully allocated jar set
	// before income can be split.
	Exactly100 AllocationPolicy = "exactly-100"
)

func (p AllocationPolicy) Valid() bool {
	return p == AtMost100 || p == Exactly100
}

// JarService orchestrates the jar ledger: allocations, transfers and
// income splitting.
type JarService struct {
	storage *storage.SQLiteRepository
	policy  AllocationPolicy
}

func NewJarService(storage *storage.SQLiteRepository, policy AllocationPolicy) *JarService {
	if !policy.Valid() {
		policy = AtMost100
	}
	return &JarService{storage: storage, policy: policy}
}

func (s *JarService) CreateJar(ctx context.Context, jar core.Jar) (core.Jar, error) {
	jar.Active = true
	if err := jar.Validate(); err != nil {
		return core.Jar{}, err
	}
	created, err := s.storage.CreateJar(ctx, jar)
	if err != nil {
		return core.Jar{}, fmt.Errorf("create jar: %w", err)
	}
	slog.InfoContext(ctx, "Created jar",
		"owner_id", created.OwnerID, "jar_id", created.ID, "percentage", created.Percentage)
	return created, nil
}

// UpdateJar patches the jar's name and/or percentage. The allocation
// cap is re-checked against the other active jars, so a jar can always
// lower or keep its own share.
func (s *JarService) UpdateJar(ctx context.Context, ownerID, jarID int64, name *string, percentage *float64) (core.Jar, error) {
	jar, err := s.storage.GetJar(ctx, ownerID, jarID)
	if err != nil {
		return core.Jar{}, err
	}
	if name != nil {
		jar.Name = *name
	}
	if percentage != nil {
		jar.Percentage = *percentage
	}
	if err := jar.Validate(); err != nil {
		return core.Jar{}, err
	}
	updated, err := s.storage.UpdateJar(ctx, jar)
	if err != nil {
		return core.Jar{}, fmt.Errorf("update jar: %w", err)
	}
	return updated, nil
}

func (s *JarService) DeactivateJar(ctx context.Context, ownerID, jarID int64) error {
	if err := s.storage.DeactivateJar(ctx, ownerID, jarID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deactivated jar", "owner_id", ownerID, "jar_id", jarID)
	return nil
}

func (s *JarService) GetJar(ctx context.Context, ownerID, jarID int64) (core.Jar, error) {
	return s.storage.GetJar(ctx, ownerID, jarID)
}

func (s *JarService) ListJars(ctx context.Context, ownerID int64) ([]core.Jar, error) {
	return s.storage.ListJars(ctx, ownerID)
}

// SplitIncome distributes an income amount across the owner's active
// jars in proportion to their percentages and deposits the shares in
// one transaction. The shares always sum to the amount exactly.
func (s *JarService) SplitIncome(ctx context.Context, ownerID int64, amount core.Money) ([]core.JarShare, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	jars, err := s.storage.ListActiveJars(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active jars: %w", err)
	}
	if s.policy == Exactly100 && core.TotalPercentageBp(jars) != 10000 {
		return nil, core.ErrAllocationNotFull
	}

	shares, err := core.SplitByPercentage(jars, amount)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: owner has no allocated jars", core.ErrAllocationNotFull)
	}

	if err := s.storage.DepositShares(ctx, ownerID, shares); err != nil {
		return nil, fmt.Errorf("deposit income: %w", err)
	}

	slog.InfoContext(ctx, "Split income across jars",
		"owner_id", ownerID, "amount_cents", amount.Cents, "jars", len(shares))
	return shares, nil
}

// Transfer validates and applies an atomic jar-to-jar movement.
func (s *JarService) Transfer(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	if err := tr.Validate(); err != nil {
		return core.Transfer{}, err
	}
	created, err := s.storage.TransferFunds(ctx, tr)
	if err != nil {
		return core.Transfer{}, err
	}
	slog.InfoContext(ctx, "Transferred funds between jars",
		"owner_id", created.OwnerID,
		"from_jar_id", created.FromJarID,
		"to_jar_id", created.ToJarID,
		"amount_cents", created.Amount.Cents)
	return created, nil
}

// ListTransfers returns the owner's journal, newest first.
func (s *JarService) ListTransfers(ctx context.Context, ownerID int64) ([]core.Transfer, error) {
	return s.storage.ListTransfers(ctx, ownerID)
}
