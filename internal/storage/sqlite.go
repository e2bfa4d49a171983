package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"

	_ "modernc.org/sqlite"
)

const templateColumns = `id, owner_id, category, amount, currency, description, frequency,
	day_of_month, day_of_week, start_date, end_date, last_materialized, last_reminded,
	is_active, created_at, updated_at`

const expenseColumns = `id, template_id, owner_id, category, amount, currency, description,
	occurred_on, created_at`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t core.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Category, t.Amount, t.Currency, t.Description, string(t.Frequency),
		nullInt(t.DayOfMonth), nullInt(t.DayOfWeek), t.StartDate.String(), nullDate(t.EndDate),
		nullDate(t.LastMaterialized), nullDate(t.LastReminded), t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id uuid.UUID) (core.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Template{}, core.ErrTemplateNotFound
	}
	if err != nil {
		return core.Template{}, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE owner_id = ?
		ORDER BY created_at, id`, ownerID)
}

func (s *SQLiteStore) ListActiveTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM templates
		WHERE owner_id = ? AND is_active = 1
		ORDER BY created_at, id`, ownerID)
}

func (s *SQLiteStore) queryTemplates(ctx context.Context, query string, args ...any) ([]core.Template, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []core.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t core.Template) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET category = ?, amount = ?, currency = ?, description = ?, frequency = ?,
			day_of_month = ?, day_of_week = ?, start_date = ?, end_date = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`,
		t.Category, t.Amount, t.Currency, t.Description, string(t.Frequency),
		nullInt(t.DayOfMonth), nullInt(t.DayOfWeek), t.StartDate.String(), nullDate(t.EndDate),
		t.IsActive, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkReminded(ctx context.Context, id uuid.UUID, on core.Date) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET last_reminded = ? WHERE id = ?`,
		on.String(), id)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func (s *SQLiteStore) ResetCursor(ctx context.Context, id uuid.UUID, to core.Date) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET last_materialized = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		to.String(), id)
	if err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

// MaterializeOccurrence implements the one-transaction materialization
// contract: duplicate check, cursor advance and expense insert either
// all land or none do. The unique index on (template_id, occurred_on)
// backstops the duplicate check under concurrent writers.
func (s *SQLiteStore) MaterializeOccurrence(ctx context.Context, e core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE template_id = ? AND occurred_on = ?)`,
		e.TemplateID, e.Date.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check occurrence: %v", core.ErrTransactionFailed, err)
	}
	if exists {
		return core.ErrDuplicateOccurrence
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE templates SET last_materialized = ?, updated_at = ? WHERE id = ?`,
		e.Date.String(), time.Now().UTC(), e.TemplateID)
	if err != nil {
		return fmt.Errorf("%w: advance cursor: %v", core.ErrTransactionFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: advance cursor: %v", core.ErrTransactionFailed, err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TemplateID, e.OwnerID, e.Category, e.Amount, e.Currency, e.Description,
		e.Date.String(), e.CreatedAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return core.ErrDuplicateOccurrence
		}
		return fmt.Errorf("%w: insert occurrence: %v", core.ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrTransactionFailed, err)
	}

	slog.InfoContext(ctx, "Occurrence materialized",
		"template_id", e.TemplateID,
		"expense_id", e.ID,
		"occurred_on", e.Date.String(),
		"amount", e.Amount.String(),
		"currency", e.Currency)

	return nil
}

func (s *SQLiteStore) ListExpenses(ctx context.Context, ownerID uuid.UUID, from, to *core.Date) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = ?`
	args := []any{ownerID}
	if from != nil {
		query += ` AND occurred_on >= ?`
		args = append(args, from.String())
	}
	if to != nil {
		query += ` AND occurred_on <= ?`
		args = append(args, to.String())
	}
	query += ` ORDER BY occurred_on, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func (s *SQLiteStore) ReadMonthSummary(ctx context.Context, ownerID uuid.UUID, year, month int) (core.OwnerSummary, error) {
	from, to := monthBounds(year, month)
	expenses, err := s.ListExpenses(ctx, ownerID, &from, &to)
	if err != nil {
		return core.OwnerSummary{}, fmt.Errorf("read month summary: %w", err)
	}
	return summarize(year, month, expenses), nil
}

func (s *SQLiteStore) ListOwners(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM templates ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return owners, nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (core.Template, error) {
	var (
		t        core.Template
		freq     string
		dayMonth sql.NullInt64
		dayWeek  sql.NullInt64
		start    string
		end      sql.NullString
		cursor   sql.NullString
		reminded sql.NullString
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Category, &t.Amount, &t.Currency, &t.Description, &freq,
		&dayMonth, &dayWeek, &start, &end, &cursor, &reminded,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Template{}, err
	}

	t.Frequency = core.Frequency(freq)
	if dayMonth.Valid {
		v := int(dayMonth.Int64)
		t.DayOfMonth = &v
	}
	if dayWeek.Valid {
		v := int(dayWeek.Int64)
		t.DayOfWeek = &v
	}
	if t.StartDate, err = core.ParseDate(start); err != nil {
		return core.Template{}, fmt.Errorf("parse start_date: %w", err)
	}
	if t.EndDate, err = parseNullDate(end); err != nil {
		return core.Template{}, fmt.Errorf("parse end_date: %w", err)
	}
	if t.LastMaterialized, err = parseNullDate(cursor); err != nil {
		return core.Template{}, fmt.Errorf("parse last_materialized: %w", err)
	}
	if t.LastReminded, err = parseNullDate(reminded); err != nil {
		return core.Template{}, fmt.Errorf("parse last_reminded: %w", err)
	}
	return t, nil
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e  core.Expense
		on string
	)
	err := row.Scan(&e.ID, &e.TemplateID, &e.OwnerID, &e.Category, &e.Amount, &e.Currency,
		&e.Description, &on, &e.CreatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Date, err = core.ParseDate(on); err != nil {
		return core.Expense{}, fmt.Errorf("parse occurred_on: %w", err)
	}
	return e, nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullDate(d *core.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDate(ns sql.NullString) (*core.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := core.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
