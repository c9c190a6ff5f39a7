// Package store is the data access facade shared by every backend: a small
// table API with equality, inequality and IN filters, ordering and
// limit/offset pagination. Rows travel as column maps and are decoded into
// typed records by the repositories.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("store: unique constraint violation")
	// ErrInvalidReference is returned when a write violates a foreign key.
	ErrInvalidReference = errors.New("store: foreign key violation")
	// ErrEmptyResult is returned when a write reports no affected rows.
	ErrEmptyResult = errors.New("store: write returned no rows")
	// ErrInvalidQuery is returned for malformed identifiers or filters.
	ErrInvalidQuery = errors.New("store: invalid query")
)

// Row is one record keyed by column name.
type Row map[string]any

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpIn  Op = "in"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }

// In matches rows whose column is one of values. An empty list matches nothing.
func In[T any](column string, values []T) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vs}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query selects rows. Zero Limit means no limit; empty Columns means all.
type Query struct {
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Table is one collection in the remote store.
type Table interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	// Insert writes one row and returns it as stored, with server defaults applied.
	Insert(ctx context.Context, values Row) (Row, error)
	// Update applies values to every row matching filters and returns the updated rows.
	Update(ctx context.Context, filters []Filter, values Row) ([]Row, error)
	// Delete removes every row matching filters and returns how many were removed.
	Delete(ctx context.Context, filters []Filter) (int, error)
}

// Client hands out tables. Implementations are safe for concurrent use.
type Client interface {
	Table(name string) Table
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column name.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// Validate checks identifiers and filter shapes before a backend builds a request.
func (q Query) Validate() error {
	for _, c := range q.Columns {
		if !ValidIdentifier(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidQuery, c)
		}
	}
	if err := ValidateFilters(q.Filters); err != nil {
		return err
	}
	for _, o := range q.Order {
		if !ValidIdentifier(o.Column) {
			return fmt.Errorf("%w: order column %q", ErrInvalidQuery, o.Column)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	return nil
}

func ValidateFilters(filters []Filter) error {
	for _, f := range filters {
		if !ValidIdentifier(f.Column) {
			return fmt.Errorf("%w: filter column %q", ErrInvalidQuery, f.Column)
		}
		switch f.Op {
		case OpEq, OpNeq:
		case OpIn:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("%w: in filter on %q needs a list", ErrInvalidQuery, f.Column)
			}
		default:
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

func ValidateRow(values Row) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidQuery)
	}
	for c := range values {
		if !ValidIdentifier(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidQuery, c)
		}
	}
	return nil
}

// Decode converts rows into dest (a pointer to a struct or slice of structs)
// through their JSON form, so json tags name the columns.
func Decode(src any, dest any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("store: encode rows: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("store: decode rows: %w", err)
	}
	return nil
}
