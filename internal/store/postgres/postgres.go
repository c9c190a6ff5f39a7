// Package postgres implements store.Client on database/sql with lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/crucial707/radar/internal/store"
	"github.com/lib/pq"
)

// ==========================
// Client
// ==========================
type Client struct {
	DB *sql.DB
}

func New(db *sql.DB) *Client {
	return &Client{DB: db}
}

func (c *Client) Table(name string) store.Table {
	return &Table{db: c.DB, name: name}
}

type Table struct {
	db   *sql.DB
	name string
}

// ==========================
// Select
// ==========================
func (t *Table) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	if err := t.checkName(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var b builder
	b.WriteString("SELECT ")
	b.WriteString(columnList(q.Columns))
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(t.name))
	b.where(q.Filters)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = pq.QuoteIdentifier(o.Column) + " " + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + b.arg(q.Offset))
	}

	rows, err := t.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, mapError(err)
	}
	return scanRows(rows)
}

// ==========================
// Insert
// ==========================
func (t *Table) Insert(ctx context.Context, values store.Row) (store.Row, error) {
	if err := t.checkName(); err != nil {
		return nil, err
	}
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}

	cols := sortedKeys(values)
	var b builder
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		params[i] = b.arg(values[c])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pq.QuoteIdentifier(t.name), strings.Join(quoted, ", "), strings.Join(params, ", "))

	rows, err := t.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrEmptyResult
	}
	return out[0], nil
}

// ==========================
// Update
// ==========================
func (t *Table) Update(ctx context.Context, filters []store.Filter, values store.Row) ([]store.Row, error) {
	if err := t.checkName(); err != nil {
		return nil, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}

	var b builder
	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = pq.QuoteIdentifier(c) + " = " + b.arg(values[c])
	}
	b.WriteString("UPDATE " + pq.QuoteIdentifier(t.name) + " SET " + strings.Join(sets, ", "))
	b.where(filters)
	b.WriteString(" RETURNING *")

	rows, err := t.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, mapError(err)
	}
	return scanRows(rows)
}

// ==========================
// Delete
// ==========================
func (t *Table) Delete(ctx context.Context, filters []store.Filter) (int, error) {
	if err := t.checkName(); err != nil {
		return 0, err
	}
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}

	var b builder
	b.WriteString("DELETE FROM " + pq.QuoteIdentifier(t.name))
	b.where(filters)

	result, err := t.db.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *Table) checkName() error {
	if !store.ValidIdentifier(t.name) {
		return fmt.Errorf("%w: table %q", store.ErrInvalidQuery, t.name)
	}
	return nil
}

// builder accumulates SQL text and positional arguments.
type builder struct {
	strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) where(filters []store.Filter) {
	if len(filters) == 0 {
		return
	}
	conds := make([]string, len(filters))
	for i, f := range filters {
		col := pq.QuoteIdentifier(f.Column)
		switch f.Op {
		case store.OpEq:
			if f.Value == nil {
				conds[i] = col + " IS NULL"
			} else {
				conds[i] = col + " = " + b.arg(f.Value)
			}
		case store.OpNeq:
			if f.Value == nil {
				conds[i] = col + " IS NOT NULL"
			} else {
				conds[i] = col + " <> " + b.arg(f.Value)
			}
		case store.OpIn:
			vals := f.Value.([]any)
			if len(vals) == 0 {
				conds[i] = "FALSE"
				continue
			}
			params := make([]string, len(vals))
			for j, v := range vals {
				params[j] = b.arg(v)
			}
			conds[i] = col + " IN (" + strings.Join(params, ", ") + ")"
		}
	}
	b.WriteString(" WHERE " + strings.Join(conds, " AND "))
}

func columnList(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(r store.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []store.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			// text can come back as []byte; keep it a string so it decodes as one
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// mapError turns constraint violations into store sentinels.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrInvalidReference, pqErr.Constraint)
		}
	}
	return err
}
