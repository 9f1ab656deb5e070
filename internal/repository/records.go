package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
)

// Table stores one kind of per-user record with a single upsert statement.
// Rows are unique by user_id, plus KeyColumn when set.
type Table[T any] struct {
	DB        *sql.DB
	Name      string
	KeyColumn string
	Columns   []string

	// Fields returns pointers to the Columns of rec, in order. They serve
	// both as scan targets and as statement arguments.
	Fields func(rec *T) []any
	// Key points at the key field. Nil when KeyColumn is empty.
	Key func(rec *T) *string
	// Owner points at the user id field.
	Owner func(rec *T) *string
	// Updated points at the updated_at field.
	Updated func(rec *T) *time.Time

	selectSQL string
	listSQL   string
	upsertSQL string
	deleteSQL string
}

// Prepare builds the SQL statements of t and returns it.
func (t *Table[T]) Prepare() *Table[T] {
	cols := strings.Join(t.Columns, ", ")

	where := "user_id = $1"
	conflict := "user_id"
	insertCols := []string{"user_id"}
	if t.KeyColumn != "" {
		where += " AND " + t.KeyColumn + " = $2"
		conflict += ", " + t.KeyColumn
		insertCols = append(insertCols, t.KeyColumn)
	}
	insertCols = append(insertCols, t.Columns...)

	placeholders := make([]string, len(insertCols))
	for i := range insertCols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	sets = append(sets, "updated_at = now()")

	t.selectSQL = fmt.Sprintf("SELECT %s, updated_at FROM %s WHERE %s", cols, t.Name, where)
	t.upsertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING updated_at",
		t.Name, strings.Join(insertCols, ", "), strings.Join(placeholders, ", "), conflict, strings.Join(sets, ", "))
	if t.KeyColumn != "" {
		t.listSQL = fmt.Sprintf("SELECT %s, %s, updated_at FROM %s WHERE user_id = $1 ORDER BY %s",
			t.KeyColumn, cols, t.Name, t.KeyColumn)
		t.deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s", t.Name, where)
	}
	return t
}

func (t *Table[T]) keyArgs(key string) []any {
	if t.KeyColumn == "" {
		return nil
	}
	return []any{key}
}

// Get fetches the user's row. It returns models.ErrNotFound when absent.
func (t *Table[T]) Get(ctx context.Context, userID, key string) (T, error) {
	var rec T
	args := append([]any{userID}, t.keyArgs(key)...)
	targets := append(t.Fields(&rec), t.Updated(&rec))

	if err := t.DB.QueryRowContext(ctx, t.selectSQL, args...).Scan(targets...); err != nil {
		var zero T
		return zero, fmt.Errorf("get %s: %w", t.Name, mapError(err))
	}
	*t.Owner(&rec) = userID
	if t.Key != nil {
		*t.Key(&rec) = key
	}
	return rec, nil
}

// List returns all rows of the user ordered by key.
func (t *Table[T]) List(ctx context.Context, userID string) ([]T, error) {
	if t.listSQL == "" {
		return nil, fmt.Errorf("list %s: table has no key column", t.Name)
	}
	rows, err := t.DB.QueryContext(ctx, t.listSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var rec T
		targets := append([]any{t.Key(&rec)}, t.Fields(&rec)...)
		targets = append(targets, t.Updated(&rec))
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		*t.Owner(&rec) = userID
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	return out, nil
}

// Upsert inserts rec for the user or updates the existing row, and returns
// rec with its new updated_at.
func (t *Table[T]) Upsert(ctx context.Context, userID string, rec T) (T, error) {
	args := []any{userID}
	if t.Key != nil {
		args = append(args, *t.Key(&rec))
	}
	args = append(args, t.Fields(&rec)...)

	if err := t.DB.QueryRowContext(ctx, t.upsertSQL, args...).Scan(t.Updated(&rec)); err != nil {
		var zero T
		return zero, fmt.Errorf("upsert %s: %w", t.Name, mapError(err))
	}
	*t.Owner(&rec) = userID
	return rec, nil
}

// Delete removes the user's row with the given key.
func (t *Table[T]) Delete(ctx context.Context, userID, key string) error {
	if t.deleteSQL == "" {
		return fmt.Errorf("delete %s: table has no key column", t.Name)
	}
	res, err := t.DB.ExecContext(ctx, t.deleteSQL, userID, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", t.Name, models.ErrNotFound)
	}
	return nil
}
