// Package memstore is an in-process store.Client for local development and
// tests. It mimics the server-side behavior the services rely on: serial ids,
// created_at defaults, unique columns and foreign keys.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crucial707/radar/internal/store"
)

// TableSpec describes server-side rules for one table.
type TableSpec struct {
	Name       string
	Unique     []string
	Defaults   store.Row
	References map[string]string // column -> referenced table (by id)
}

// DefaultTables are the users and posts tables as created by the SQL migrations.
func DefaultTables() []TableSpec {
	return []TableSpec{
		{
			Name:     "users",
			Unique:   []string{"username", "email"},
			Defaults: store.Row{"is_active": true, "bio": nil},
		},
		{
			Name:       "posts",
			Defaults:   store.Row{"title": nil, "image_url": nil, "updated_at": nil},
			References: map[string]string{"author_id": "users"},
		},
	}
}

type table struct {
	spec   TableSpec
	rows   []store.Row
	nextID int64
}

// Client is safe for concurrent use.
type Client struct {
	mu     sync.Mutex
	tables map[string]*table
	now    func() time.Time
}

type Option func(*Client)

// WithClock overrides the clock used for created_at defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(specs []TableSpec, opts ...Option) *Client {
	c := &Client{tables: make(map[string]*table), now: time.Now}
	for _, s := range specs {
		c.tables[s.Name] = &table{spec: s, nextID: 1}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Table(name string) store.Table {
	return &tableRef{c: c, name: name}
}

type tableRef struct {
	c    *Client
	name string
}

func (r *tableRef) get() (*table, error) {
	t, ok := r.c.tables[r.name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", store.ErrInvalidQuery, r.name)
	}
	return t, nil
}

func (r *tableRef) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, err := r.get()
	if err != nil {
		return nil, err
	}

	var matched []store.Row
	for _, row := range t.rows {
		if matches(row, q.Filters) {
			matched = append(matched, row)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset >= len(matched) {
		return []store.Row{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]store.Row, 0, len(matched))
	for _, row := range matched {
		out = append(out, project(row, q.Columns))
	}
	return out, nil
}

func (r *tableRef) Insert(ctx context.Context, values store.Row) (store.Row, error) {
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, err := r.get()
	if err != nil {
		return nil, err
	}

	row := store.Row{}
	for k, v := range t.spec.Defaults {
		row[k] = v
	}
	for k, v := range values {
		row[k] = normalize(v)
	}
	if _, ok := row["id"]; !ok {
		row["id"] = t.nextID
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = r.c.now().UTC()
	}

	if err := r.c.checkReferences(t, row); err != nil {
		return nil, err
	}
	if err := checkUnique(t, row, -1); err != nil {
		return nil, err
	}

	if id, ok := toFloat(row["id"]); ok && int64(id) >= t.nextID {
		t.nextID = int64(id) + 1
	}
	t.rows = append(t.rows, row)
	return copyRow(row), nil
}

func (r *tableRef) Update(ctx context.Context, filters []store.Filter, values store.Row) ([]store.Row, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, err := r.get()
	if err != nil {
		return nil, err
	}

	// Validate every candidate first so a failed update leaves no partial writes.
	var idx []int
	var updated []store.Row
	for i, row := range t.rows {
		if !matches(row, filters) {
			continue
		}
		next := copyRow(row)
		for k, v := range values {
			next[k] = normalize(v)
		}
		if err := r.c.checkReferences(t, next); err != nil {
			return nil, err
		}
		if err := checkUnique(t, next, i); err != nil {
			return nil, err
		}
		idx = append(idx, i)
		updated = append(updated, next)
	}

	out := make([]store.Row, 0, len(updated))
	for n, i := range idx {
		t.rows[i] = updated[n]
		out = append(out, copyRow(updated[n]))
	}
	return out, nil
}

func (r *tableRef) Delete(ctx context.Context, filters []store.Filter) (int, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, err := r.get()
	if err != nil {
		return 0, err
	}

	kept := t.rows[:0]
	removed := 0
	for _, row := range t.rows {
		if matches(row, filters) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return removed, nil
}

func (c *Client) checkReferences(t *table, row store.Row) error {
	for col, ref := range t.spec.References {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		rt, ok := c.tables[ref]
		if !ok {
			return fmt.Errorf("%w: %s.%s references %s", store.ErrInvalidReference, t.spec.Name, col, ref)
		}
		found := false
		for _, other := range rt.rows {
			if equal(other["id"], v) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s.%s = %v", store.ErrInvalidReference, t.spec.Name, col, v)
		}
	}
	return nil
}

func checkUnique(t *table, row store.Row, self int) error {
	for _, col := range append([]string{"id"}, t.spec.Unique...) {
		v := row[col]
		if v == nil {
			continue
		}
		for i, other := range t.rows {
			if i != self && equal(other[col], v) {
				return fmt.Errorf("%w: %s.%s", store.ErrConflict, t.spec.Name, col)
			}
		}
	}
	return nil
}

func matches(row store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		v := row[f.Column]
		switch f.Op {
		case store.OpEq:
			if !equal(v, f.Value) {
				return false
			}
		case store.OpNeq:
			if v == nil || equal(v, f.Value) {
				return false
			}
		case store.OpIn:
			found := false
			for _, candidate := range f.Value.([]any) {
				if equal(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func project(row store.Row, columns []string) store.Row {
	if len(columns) == 0 {
		return copyRow(row)
	}
	out := make(store.Row, len(columns))
	for _, c := range columns {
		out[c] = row[c]
	}
	return out
}

func copyRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// normalize stores integers as int64 and times in UTC so comparisons are stable.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		return x.String()
	case time.Time:
		return x.UTC()
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return compare(a, b) == 0
}

// compare orders values of the same kind. NULL compares greater than any value, so it
// sorts last ascending and first descending, as in Postgres.
func compare(a, b any) int {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
