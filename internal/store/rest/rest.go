// Package rest implements store.Client against a PostgREST endpoint such as
// the one a hosted Supabase project exposes under /rest/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/radar/internal/store"
)

// Client is created once at startup and shared by every request.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client for projectURL (e.g. https://xyz.supabase.co). The API
// key is sent both as apikey and as the bearer credential, as Supabase expects.
func New(projectURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Table(name string) store.Table {
	return &Table{c: c, name: name}
}

type Table struct {
	c    *Client
	name string
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (t *Table) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	sel := "*"
	if len(q.Columns) > 0 {
		sel = strings.Join(q.Columns, ",")
	}
	params.Set("select", sel)
	addFilters(params, q.Filters)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}

	var rows []store.Row
	if err := t.do(ctx, http.MethodGet, params, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *Table) Insert(ctx context.Context, values store.Row) (store.Row, error) {
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}
	var rows []store.Row
	if err := t.do(ctx, http.MethodPost, nil, values, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrEmptyResult
	}
	return rows[0], nil
}

func (t *Table) Update(ctx context.Context, filters []store.Filter, values store.Row) ([]store.Row, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if err := store.ValidateRow(values); err != nil {
		return nil, err
	}
	params := url.Values{}
	addFilters(params, filters)
	var rows []store.Row
	if err := t.do(ctx, http.MethodPatch, params, values, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *Table) Delete(ctx context.Context, filters []store.Filter) (int, error) {
	if err := store.ValidateFilters(filters); err != nil {
		return 0, err
	}
	params := url.Values{}
	addFilters(params, filters)
	var rows []store.Row
	if err := t.do(ctx, http.MethodDelete, params, nil, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (t *Table) do(ctx context.Context, method string, params url.Values, body any, out *[]store.Row) error {
	if !store.ValidIdentifier(t.name) {
		return fmt.Errorf("%w: table %q", store.ErrInvalidQuery, t.name)
	}

	u := t.c.baseURL + "/" + t.name
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", t.c.apiKey)
	req.Header.Set("Authorization", "Bearer "+t.c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := t.c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest %s %s: %w", method, t.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rest %s %s: read body: %w", method, t.name, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(method, t.name, resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*out = []store.Row{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("rest %s %s: decode: %w", method, t.name, err)
	}
	return nil
}

func decodeError(method, table string, status int, data []byte) error {
	var e apiError
	_ = json.Unmarshal(data, &e)
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	switch {
	case e.Code == "23505" || (status == http.StatusConflict && e.Code == ""):
		return fmt.Errorf("%w: %s", store.ErrConflict, msg)
	case e.Code == "23503":
		return fmt.Errorf("%w: %s", store.ErrInvalidReference, msg)
	}
	return fmt.Errorf("rest %s %s: status %d: %s", method, table, status, msg)
}

func addFilters(params url.Values, filters []store.Filter) {
	for _, f := range filters {
		switch f.Op {
		case store.OpEq, store.OpNeq:
			if f.Value == nil {
				if f.Op == store.OpEq {
					params.Add(f.Column, "is.null")
				} else {
					params.Add(f.Column, "not.is.null")
				}
				continue
			}
			params.Add(f.Column, string(f.Op)+"."+formatValue(f.Value, false))
		case store.OpIn:
			vals := f.Value.([]any)
			parts := make([]string, len(vals))
			for i, v := range vals {
				parts[i] = formatValue(v, true)
			}
			params.Add(f.Column, "in.("+strings.Join(parts, ",")+")")
		}
	}
}

// formatValue renders a filter operand. Inside in.(...) lists strings are
// double-quoted so commas and parentheses survive.
func formatValue(v any, inList bool) string {
	var s string
	switch x := v.(type) {
	case string:
		if !inList {
			return x
		}
		s = x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
