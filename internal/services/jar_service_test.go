package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"envelope/internal/core"
	"envelope/internal/storage"
)

func testRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createJar(t *testing.T, svc *JarService, ownerID int64, name string, pct float64) core.Jar {
	t.Helper()
	jar, err := svc.CreateJar(context.Background(), core.Jar{
		OwnerID: ownerID, Name: name, Percentage: pct,
	})
	if err != nil {
		t.Fatalf("CreateJar(%s) error = %v", name, err)
	}
	return jar
}

func TestSplitIncomeExactness(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	ctx := context.Background()

	necessities := createJar(t, svc, 1, "Necessities", 55)
	savings := createJar(t, svc, 1, "Savings", 30)
	play := createJar(t, svc, 1, "Play", 15)

	// 100.01: the odd cent must land somewhere, on the largest jar.
	shares, err := svc.SplitIncome(ctx, 1, core.Money{Cents: 10001})
	if err != nil {
		t.Fatalf("SplitIncome() error = %v", err)
	}

	var total int64
	byJar := make(map[int64]int64)
	for _, sh := range shares {
		total += sh.Amount.Cents
		byJar[sh.JarID] = sh.Amount.Cents
	}
	if total != 10001 {
		t.Errorf("sum of shares = %d, want 10001 exactly", total)
	}
	if byJar[necessities.ID] != 5501 {
		t.Errorf("necessities share = %d, want 5501 (floor 5500 + remainder)", byJar[necessities.ID])
	}
	if byJar[savings.ID] != 3000 || byJar[play.ID] != 1500 {
		t.Errorf("shares = %v, want savings 3000, play 1500", byJar)
	}

	// The deposit landed on the balances.
	got, err := svc.GetJar(ctx, 1, necessities.ID)
	if err != nil {
		t.Fatalf("GetJar() error = %v", err)
	}
	if got.Balance.Cents != 5501 {
		t.Errorf("necessities balance = %d, want 5501", got.Balance.Cents)
	}
}

func TestSplitIncomeNormalizesPartialAllocation(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	ctx := context.Background()

	a := createJar(t, svc, 1, "Savings", 30)
	b := createJar(t, svc, 1, "Play", 30)

	// Only 60% allocated: the whole amount is still split, in
	// proportion within the allocated set.
	shares, err := svc.SplitIncome(ctx, 1, core.Money{Cents: 10000})
	if err != nil {
		t.Fatalf("SplitIncome() error = %v", err)
	}
	byJar := make(map[int64]int64)
	for _, sh := range shares {
		byJar[sh.JarID] = sh.Amount.Cents
	}
	if byJar[a.ID] != 5000 || byJar[b.ID] != 5000 {
		t.Errorf("shares = %v, want 5000/5000", byJar)
	}
}

func TestSplitIncomeExactly100Policy(t *testing.T) {
	repo := testRepo(t)
	svc := NewJarService(repo, Exactly100)
	ctx := context.Background()

	jar := createJar(t, svc, 1, "Savings", 60)

	_, err := svc.SplitIncome(ctx, 1, core.Money{Cents: 10000})
	if !errors.Is(err, core.ErrAllocationNotFull) {
		t.Fatalf("SplitIncome() error = %v, want ErrAllocationNotFull", err)
	}
	got, _ := svc.GetJar(ctx, 1, jar.ID)
	if got.Balance.Cents != 0 {
		t.Errorf("balance = %d, want 0 (rejected split deposits nothing)", got.Balance.Cents)
	}

	createJar(t, svc, 1, "Play", 40)
	if _, err := svc.SplitIncome(ctx, 1, core.Money{Cents: 10000}); err != nil {
		t.Fatalf("SplitIncome() with full allocation error = %v", err)
	}
}

func TestSplitIncomeNoAllocatedJars(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	_, err := svc.SplitIncome(context.Background(), 1, core.Money{Cents: 10000})
	if !errors.Is(err, core.ErrAllocationNotFull) {
		t.Errorf("SplitIncome() error = %v, want ErrAllocationNotFull", err)
	}
}

func TestCreateJarAllocationExceeded(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	createJar(t, svc, 1, "Necessities", 90)

	_, err := svc.CreateJar(context.Background(), core.Jar{
		OwnerID: 1, Name: "Play", Percentage: 11,
	})
	if !errors.Is(err, core.ErrAllocationExceeded) {
		t.Errorf("CreateJar() error = %v, want ErrAllocationExceeded", err)
	}
}

func TestUpdateJarPatch(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	ctx := context.Background()
	jar := createJar(t, svc, 1, "Necessities", 55)

	name := "Essentials"
	updated, err := svc.UpdateJar(ctx, 1, jar.ID, &name, nil)
	if err != nil {
		t.Fatalf("UpdateJar() error = %v", err)
	}
	if updated.Name != "Essentials" || updated.Percentage != 55 {
		t.Errorf("updated = %+v, want renamed with percentage kept", updated)
	}

	pct := 101.0
	if _, err := svc.UpdateJar(ctx, 1, jar.ID, nil, &pct); !errors.Is(err, core.ErrInvalidPercentage) {
		t.Errorf("UpdateJar() error = %v, want ErrInvalidPercentage", err)
	}
}

func TestTransferValidationBeforeWrite(t *testing.T) {
	svc := NewJarService(testRepo(t), AtMost100)
	ctx := context.Background()
	jar := createJar(t, svc, 1, "Savings", 50)

	_, err := svc.Transfer(ctx, core.Transfer{
		OwnerID: 1, FromJarID: jar.ID, ToJarID: jar.ID, Amount: core.Money{Cents: 100},
	})
	if !errors.Is(err, core.ErrSameJar) {
		t.Errorf("Transfer() error = %v, want ErrSameJar", err)
	}

	_, err = svc.Transfer(ctx, core.Transfer{
		OwnerID: 1, FromJarID: jar.ID, ToJarID: jar.ID + 1, Amount: core.Money{Cents: 0},
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("Transfer() error = %v, want ErrInvalidAmount", err)
	}

	transfers, err := svc.ListTransfers(ctx, 1)
	if err != nil {
		t.Fatalf("ListTransfers() error = %v", err)
	}
	if len(transfers) != 0 {
		t.Errorf("journal has %d entries, want 0 after rejected transfers", len(transfers))
	}
}
