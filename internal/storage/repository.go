// Package storage implements persistence on SQLite. All multi-row
// invariants (allocation cap, balance conservation, exactly-once
// materialization) are enforced inside single transactions here.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"envelope/internal/core"
)

// maxAllocationBp is the allocation cap in basis points (100%).
const maxAllocationBp = 10000

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath
// and applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// Single writer keeps SQLITE_BUSY out of concurrent batch runs.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func dateFromNull(ns sql.NullString) (core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(ns.String)
}

func nullCents(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func centsFromNull(ni sql.NullInt64) *core.Money {
	if !ni.Valid {
		return nil
	}
	return &core.Money{Cents: ni.Int64}
}

type scanner interface {
	Scan(dest ...any) error
}

// --- jars ---

func scanJar(s scanner) (core.Jar, error) {
	var j core.Jar
	err := s.Scan(&j.ID, &j.OwnerID, &j.Name, &j.Percentage, &j.Balance.Cents, &j.Active)
	return j, err
}

const jarColumns = "id, owner_id, name, percentage, balance_cents, active"

// activeAllocationBp sums the active jars' percentages in basis points,
// optionally excluding one jar (for updates).
func activeAllocationBp(ctx context.Context, tx *sql.Tx, ownerID, excludeJarID int64) (int64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, percentage FROM jars WHERE owner_id = ? AND active = 1", ownerID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var id int64
		var pct float64
		if err := rows.Scan(&id, &pct); err != nil {
			return 0, err
		}
		if id == excludeJarID {
			continue
		}
		total += core.Jar{Percentage: pct}.BasisPoints()
	}
	return total, rows.Err()
}

func checkAllocation(ctx context.Context, tx *sql.Tx, jar core.Jar, excludeJarID int64) error {
	existing, err := activeAllocationBp(ctx, tx, jar.OwnerID, excludeJarID)
	if err != nil {
		return err
	}
	if existing > maxAllocationBp {
		return fmt.Errorf("%w: stored allocation already exceeds 100%%", core.ErrInvariant)
	}
	if existing+jar.BasisPoints() > maxAllocationBp {
		return core.ErrAllocationExceeded
	}
	return nil
}

func (r *SQLiteRepository) CreateJar(ctx context.Context, jar core.Jar) (core.Jar, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Jar{}, err
	}
	defer tx.Rollback()

	if err := checkAllocation(ctx, tx, jar, 0); err != nil {
		return core.Jar{}, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO jars (owner_id, name, percentage, balance_cents, active, created_at) VALUES (?, ?, ?, ?, 1, ?)",
		jar.OwnerID, jar.Name, jar.Percentage, jar.Balance.Cents, time.Now().UTC().Unix())
	if err != nil {
		return core.Jar{}, fmt.Errorf("insert jar: %w", err)
	}
	jar.ID, err = res.LastInsertId()
	if err != nil {
		return core.Jar{}, err
	}
	jar.Active = true

	if err := tx.Commit(); err != nil {
		return core.Jar{}, err
	}
	return jar, nil
}

// UpdateJar rewrites the jar's name and percentage, re-checking the
// owner's allocation cap in the same transaction.
func (r *SQLiteRepository) UpdateJar(ctx context.Context, jar core.Jar) (core.Jar, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Jar{}, err
	}
	defer tx.Rollback()

	if err := checkAllocation(ctx, tx, jar, jar.ID); err != nil {
		return core.Jar{}, err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE jars SET name = ?, percentage = ? WHERE id = ? AND owner_id = ? AND active = 1",
		jar.Name, jar.Percentage, jar.ID, jar.OwnerID)
	if err != nil {
		return core.Jar{}, fmt.Errorf("update jar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Jar{}, fmt.Errorf("%w: jar %d", core.ErrNotFound, jar.ID)
	}

	row := tx.QueryRowContext(ctx,
		"SELECT "+jarColumns+" FROM jars WHERE id = ? AND owner_id = ?", jar.ID, jar.OwnerID)
	updated, err := scanJar(row)
	if err != nil {
		return core.Jar{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Jar{}, err
	}
	return updated, nil
}

func (r *SQLiteRepository) GetJar(ctx context.Context, ownerID, jarID int64) (core.Jar, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+jarColumns+" FROM jars WHERE id = ? AND owner_id = ?", jarID, ownerID)
	jar, err := scanJar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Jar{}, fmt.Errorf("%w: jar %d", core.ErrNotFound, jarID)
	}
	return jar, err
}

func (r *SQLiteRepository) ListJars(ctx context.Context, ownerID int64) ([]core.Jar, error) {
	return r.queryJars(ctx,
		"SELECT "+jarColumns+" FROM jars WHERE owner_id = ? ORDER BY id", ownerID)
}

func (r *SQLiteRepository) ListActiveJars(ctx context.Context, ownerID int64) ([]core.Jar, error) {
	return r.queryJars(ctx,
		"SELECT "+jarColumns+" FROM jars WHERE owner_id = ? AND active = 1 ORDER BY id", ownerID)
}

func (r *SQLiteRepository) queryJars(ctx context.Context, query string, args ...any) ([]core.Jar, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jars []core.Jar
	for rows.Next() {
		jar, err := scanJar(rows)
		if err != nil {
			return nil, err
		}
		jars = append(jars, jar)
	}
	return jars, rows.Err()
}

// DeactivateJar soft-deletes the jar. The balance stays on record and
// history referencing the jar remains intact.
func (r *SQLiteRepository) DeactivateJar(ctx context.Context, ownerID, jarID int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE jars SET active = 0 WHERE id = ? AND owner_id = ? AND active = 1", jarID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: jar %d", core.ErrNotFound, jarID)
	}
	return nil
}

// --- transfers ---

// TransferFunds debits the source jar, credits the destination and
// journals the movement, all in one transaction. No cent is created or
// destroyed.
func (r *SQLiteRepository) TransferFunds(ctx context.Context, tr core.Transfer) (core.Transfer, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transfer{}, err
	}
	defer tx.Rollback()

	var fromBalance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance_cents FROM jars WHERE id = ? AND owner_id = ? AND active = 1",
		tr.FromJarID, tr.OwnerID).Scan(&fromBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, fmt.Errorf("%w: jar %d", core.ErrNotFound, tr.FromJarID)
	}
	if err != nil {
		return core.Transfer{}, err
	}

	var toExists int64
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM jars WHERE id = ? AND owner_id = ? AND active = 1",
		tr.ToJarID, tr.OwnerID).Scan(&toExists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transfer{}, fmt.Errorf("%w: jar %d", core.ErrNotFound, tr.ToJarID)
	}
	if err != nil {
		return core.Transfer{}, err
	}

	if fromBalance < tr.Amount.Cents {
		return core.Transfer{}, fmt.Errorf("%w: jar %d holds %s, transfer needs %s",
			core.ErrInsufficientFunds, tr.FromJarID,
			core.Money{Cents: fromBalance}, tr.Amount)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE jars SET balance_cents = balance_cents - ? WHERE id = ?",
		tr.Amount.Cents, tr.FromJarID); err != nil {
		return core.Transfer{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE jars SET balance_cents = balance_cents + ? WHERE id = ?",
		tr.Amount.Cents, tr.ToJarID); err != nil {
		return core.Transfer{}, err
	}

	tr.Timestamp = time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO transfers (owner_id, from_jar_id, to_jar_id, amount_cents, note, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		tr.OwnerID, tr.FromJarID, tr.ToJarID, tr.Amount.Cents, tr.Note, tr.Timestamp.Unix())
	if err != nil {
		return core.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	tr.ID, err = res.LastInsertId()
	if err != nil {
		return core.Transfer{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transfer{}, err
	}
	return tr, nil
}

func (r *SQLiteRepository) ListTransfers(ctx context.Context, ownerID int64) ([]core.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, owner_id, from_jar_id, to_jar_id, amount_cents, note, created_at FROM transfers WHERE owner_id = ? ORDER BY created_at DESC, id DESC",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []core.Transfer
	for rows.Next() {
		var tr core.Transfer
		var createdAt int64
		if err := rows.Scan(&tr.ID, &tr.OwnerID, &tr.FromJarID, &tr.ToJarID,
			&tr.Amount.Cents, &tr.Note, &createdAt); err != nil {
			return nil, err
		}
		tr.Timestamp = time.Unix(createdAt, 0).UTC()
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}

// DepositShares credits each jar with its share of a split income in
// one transaction. A missing or inactive jar aborts the whole deposit.
func (r *SQLiteRepository) DepositShares(ctx context.Context, ownerID int64, shares []core.JarShare) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range shares {
		res, err := tx.ExecContext(ctx,
			"UPDATE jars SET balance_cents = balance_cents + ? WHERE id = ? AND owner_id = ? AND active = 1",
			s.Amount.Cents, s.JarID, ownerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: jar %d", core.ErrNotFound, s.JarID)
		}
	}

	return tx.Commit()
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (owner_id, name, monthly_limit_cents) VALUES (?, ?, ?)",
		c.OwnerID, c.Name, nullCents(c.MonthlyLimit))
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, categoryID int64) (core.Category, error) {
	var c core.Category
	var limit sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, monthly_limit_cents FROM categories WHERE id = ? AND owner_id = ?",
		categoryID, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name, &limit)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: category %d", core.ErrNotFound, categoryID)
	}
	if err != nil {
		return core.Category{}, err
	}
	c.MonthlyLimit = centsFromNull(limit)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, owner_id, name, monthly_limit_cents FROM categories WHERE owner_id = ? ORDER BY id",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		var limit sql.NullInt64
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &limit); err != nil {
			return nil, err
		}
		c.MonthlyLimit = centsFromNull(limit)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) SetCategoryLimit(ctx context.Context, ownerID, categoryID int64, limit *core.Money) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET monthly_limit_cents = ? WHERE id = ? AND owner_id = ?",
		nullCents(limit), categoryID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: category %d", core.ErrNotFound, categoryID)
	}
	return nil
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	var recurringID sql.NullInt64
	if e.RecurringID != nil {
		recurringID = sql.NullInt64{Int64: *e.RecurringID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO expenses (owner_id, category_id, amount_cents, date, description, recurring_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.OwnerID, e.CategoryID, e.Amount.Cents, e.Date.String(), e.Description,
		recurringID, time.Now().UTC().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, core.ErrAlreadyMaterialized
		}
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// monthRange returns the half-open [first, next-month-first) window of
// a period as sortable date strings.
func monthRange(p core.Period) (string, string) {
	first := core.NewDate(p.Year, p.Month, 1)
	return first.String(), core.NewDate(p.Year, p.Month+1, 1).String()
}

// MonthlySpend sums the owner's expenses inside the period.
func (r *SQLiteRepository) MonthlySpend(ctx context.Context, ownerID int64, p core.Period) (core.Money, error) {
	from, to := monthRange(p)
	var cents int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE owner_id = ? AND date >= ? AND date < ?",
		ownerID, from, to).Scan(&cents)
	return core.Money{Cents: cents}, err
}

// MonthlySpendByCategory returns the per-category expense totals inside
// the period. Categories without expenses are absent from the map.
func (r *SQLiteRepository) MonthlySpendByCategory(ctx context.Context, ownerID int64, p core.Period) (map[int64]core.Money, error) {
	from, to := monthRange(p)
	rows, err := r.db.QueryContext(ctx,
		"SELECT category_id, SUM(amount_cents) FROM expenses WHERE owner_id = ? AND date >= ? AND date < ? GROUP BY category_id",
		ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[int64]core.Money)
	for rows.Next() {
		var categoryID, cents int64
		if err := rows.Scan(&categoryID, &cents); err != nil {
			return nil, err
		}
		totals[categoryID] = core.Money{Cents: cents}
	}
	return totals, rows.Err()
}

// --- owner settings ---

func (r *SQLiteRepository) SetOverallLimit(ctx context.Context, ownerID int64, limit *core.Money) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO owner_settings (owner_id, overall_limit_cents) VALUES (?, ?) ON CONFLICT(owner_id) DO UPDATE SET overall_limit_cents = excluded.overall_limit_cents",
		ownerID, nullCents(limit))
	return err
}

func (r *SQLiteRepository) GetOverallLimit(ctx context.Context, ownerID int64) (*core.Money, error) {
	var limit sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT overall_limit_cents FROM owner_settings WHERE owner_id = ?", ownerID).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return centsFromNull(limit), nil
}

// ListOwnerIDs returns every owner known to the store, for sweeps that
// run across all accounts.
func (r *SQLiteRepository) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT owner_id FROM jars UNION SELECT owner_id FROM categories UNION SELECT owner_id FROM owner_settings ORDER BY 1")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// --- recurring templates ---

const recurringColumns = "id, owner_id, category_id, amount_cents, description, frequency, day_of_month, day_of_week, start_date, end_date, is_active, next_due_date, last_created"

func scanRecurring(s scanner) (core.RecurringExpense, error) {
	var re core.RecurringExpense
	var dayOfMonth, dayOfWeek sql.NullInt64
	var startDate string
	var endDate, nextDue, lastCreated sql.NullString
	err := s.Scan(&re.ID, &re.OwnerID, &re.CategoryID, &re.Amount.Cents, &re.Description,
		&re.Frequency, &dayOfMonth, &dayOfWeek, &startDate, &endDate, &re.IsActive,
		&nextDue, &lastCreated)
	if err != nil {
		return core.RecurringExpense{}, err
	}
	if dayOfMonth.Valid {
		v := int(dayOfMonth.Int64)
		re.DayOfMonth = &v
	}
	if dayOfWeek.Valid {
		v := int(dayOfWeek.Int64)
		re.DayOfWeek = &v
	}
	if re.StartDate, err = core.ParseDate(startDate); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.EndDate, err = dateFromNull(endDate); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.NextDue, err = dateFromNull(nextDue); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.LastCreated, err = dateFromNull(lastCreated); err != nil {
		return core.RecurringExpense{}, err
	}
	return re, nil
}

func nullDayField(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO recurring_expenses (owner_id, category_id, amount_cents, description, frequency, day_of_month, day_of_week, start_date, end_date, is_active, next_due_date, last_created, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		re.OwnerID, re.CategoryID, re.Amount.Cents, re.Description, re.Frequency,
		nullDayField(re.DayOfMonth), nullDayField(re.DayOfWeek),
		re.StartDate.String(), nullDate(re.EndDate), re.IsActive,
		nullDate(re.NextDue), nullDate(re.LastCreated), time.Now().UTC().Unix())
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("insert recurring expense: %w", err)
	}
	re.ID, err = res.LastInsertId()
	if err != nil {
		return core.RecurringExpense{}, err
	}
	return re, nil
}

// UpdateRecurring rewrites the template's mutable fields, including
// its schedule state.
func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, re core.RecurringExpense) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurring_expenses SET category_id = ?, amount_cents = ?, description = ?, frequency = ?, day_of_month = ?, day_of_week = ?, start_date = ?, end_date = ?, is_active = ?, next_due_date = ?, last_created = ? WHERE id = ? AND owner_id = ?",
		re.CategoryID, re.Amount.Cents, re.Description, re.Frequency,
		nullDayField(re.DayOfMonth), nullDayField(re.DayOfWeek),
		re.StartDate.String(), nullDate(re.EndDate), re.IsActive,
		nullDate(re.NextDue), nullDate(re.LastCreated), re.ID, re.OwnerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: recurring expense %d", core.ErrNotFound, re.ID)
	}
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, ownerID, id int64) (core.RecurringExpense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recurringColumns+" FROM recurring_expenses WHERE id = ? AND owner_id = ?", id, ownerID)
	re, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringExpense{}, fmt.Errorf("%w: recurring expense %d", core.ErrNotFound, id)
	}
	return re, err
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error) {
	return r.queryRecurring(ctx,
		"SELECT "+recurringColumns+" FROM recurring_expenses WHERE owner_id = ? ORDER BY id", ownerID)
}

// ListDueRecurring returns every active template across all owners
// whose next due date is on or before today.
func (r *SQLiteRepository) ListDueRecurring(ctx context.Context, today core.Date) ([]core.RecurringExpense, error) {
	return r.queryRecurring(ctx,
		"SELECT "+recurringColumns+" FROM recurring_expenses WHERE is_active = 1 AND next_due_date IS NOT NULL AND next_due_date <= ? ORDER BY id",
		today.String())
}

func (r *SQLiteRepository) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, re)
	}
	return templates, rows.Err()
}

func (r *SQLiteRepository) DeactivateRecurring(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurring_expenses SET is_active = 0 WHERE id = ? AND owner_id = ? AND is_active = 1",
		id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: recurring expense %d", core.ErrNotFound, id)
	}
	return nil
}

// MaterializeOccurrence turns the template's pending due date into a
// concrete expense, exactly once. The compare-and-set on next_due_date
// makes concurrent runs lose cleanly, and the unique index on
// (recurring_id, date) backstops any writer that slips past it. Both
// the schedule advance and the expense insert commit together or not
// at all.
func (r *SQLiteRepository) MaterializeOccurrence(ctx context.Context, re core.RecurringExpense, next core.Date) (core.Expense, error) {
	due := re.NextDue

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE recurring_expenses SET last_created = ?, next_due_date = ? WHERE id = ? AND next_due_date = ?",
		due.String(), nullDate(next), re.ID, due.String())
	if err != nil {
		return core.Expense{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Expense{}, core.ErrAlreadyMaterialized
	}

	expense := core.Expense{
		OwnerID:     re.OwnerID,
		CategoryID:  re.CategoryID,
		Amount:      re.Amount,
		Date:        due,
		Description: re.Description,
		RecurringID: &re.ID,
	}
	ins, err := tx.ExecContext(ctx,
		"INSERT INTO expenses (owner_id, category_id, amount_cents, date, description, recurring_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		expense.OwnerID, expense.CategoryID, expense.Amount.Cents, expense.Date.String(),
		expense.Description, re.ID, time.Now().UTC().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, core.ErrAlreadyMaterialized
		}
		return core.Expense{}, fmt.Errorf("insert materialized expense: %w", err)
	}
	expense.ID, err = ins.LastInsertId()
	if err != nil {
		return core.Expense{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, err
	}
	return expense, nil
}
