package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"scadenze/internal/core"
)

// Date columns come back as text so both SQL backends share one row
// mapping.
const templateColumnsPG = `id, owner_id, category, amount, currency, description, frequency,
	day_of_month, day_of_week, start_date::text, end_date::text, last_materialized::text,
	last_reminded::text, is_active, created_at, updated_at`

const expenseColumnsPG = `id, template_id, owner_id, category, amount, currency, description,
	occurred_on::text, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunPostgresMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, t core.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, owner_id, category, amount, currency, description, frequency,
			day_of_month, day_of_week, start_date, end_date, last_materialized, last_reminded,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.OwnerID, t.Category, t.Amount, t.Currency, t.Description, string(t.Frequency),
		nullInt(t.DayOfMonth), nullInt(t.DayOfWeek), t.StartDate.String(), nullDate(t.EndDate),
		nullDate(t.LastMaterialized), nullDate(t.LastReminded), t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id uuid.UUID) (core.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumnsPG+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Template{}, core.ErrTemplateNotFound
	}
	if err != nil {
		return core.Template{}, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumnsPG+` FROM templates
		WHERE owner_id = $1
		ORDER BY created_at, id`, ownerID)
}

func (s *PostgresStore) ListActiveTemplates(ctx context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumnsPG+` FROM templates
		WHERE owner_id = $1 AND is_active
		ORDER BY created_at, id`, ownerID)
}

func (s *PostgresStore) queryTemplates(ctx context.Context, query string, args ...any) ([]core.Template, error) {
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

func (s *PostgresStore) UpdateTemplate(ctx context.Context, t core.Template) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET category = $1, amount = $2, currency = $3, description = $4, frequency = $5,
			day_of_month = $6, day_of_week = $7, start_date = $8, end_date = $9,
			is_active = $10, updated_at = $11
		WHERE id = $12`,
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

func (s *PostgresStore) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
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

func (s *PostgresStore) MarkReminded(ctx context.Context, id uuid.UUID, on core.Date) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET last_reminded = $1 WHERE id = $2`,
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

func (s *PostgresStore) ResetCursor(ctx context.Context, id uuid.UUID, to core.Date) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET last_materialized = $1, updated_at = NOW() WHERE id = $2`,
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

func (s *PostgresStore) MaterializeOccurrence(ctx context.Context, e core.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE template_id = $1 AND occurred_on = $2)`,
		e.TemplateID, e.Date.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check occurrence: %v", core.ErrTransactionFailed, err)
	}
	if exists {
		return core.ErrDuplicateOccurrence
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE templates SET last_materialized = $1, updated_at = $2 WHERE id = $3`,
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
		INSERT INTO expenses (id, template_id, owner_id, category, amount, currency, description,
			occurred_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TemplateID, e.OwnerID, e.Category, e.Amount, e.Currency, e.Description,
		e.Date.String(), e.CreatedAt)
	if err != nil {
		if isPostgresUniqueViolation(err) {
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

func (s *PostgresStore) ListExpenses(ctx context.Context, ownerID uuid.UUID, from, to *core.Date) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumnsPG + ` FROM expenses WHERE owner_id = $1`
	args := []any{ownerID}
	if from != nil {
		args = append(args, from.String())
		query += fmt.Sprintf(` AND occurred_on >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, to.String())
		query += fmt.Sprintf(` AND occurred_on <= $%d`, len(args))
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

func (s *PostgresStore) ReadMonthSummary(ctx context.Context, ownerID uuid.UUID, year, month int) (core.OwnerSummary, error) {
	from, to := monthBounds(year, month)
	expenses, err := s.ListExpenses(ctx, ownerID, &from, &to)
	if err != nil {
		return core.OwnerSummary{}, fmt.Errorf("read month summary: %w", err)
	}
	return summarize(year, month, expenses), nil
}

func (s *PostgresStore) ListOwners(ctx context.Context) ([]uuid.UUID, error) {
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

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
