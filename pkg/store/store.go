package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"jobhunt/pkg/domain"
)

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts selected rows by one column.
type Order struct {
	Column string
	Desc   bool
}

// Store is the row-oriented data capability of the hosted backend.
// Rows are decoded into out, which must be a pointer to a slice.
type Store interface {
	Select(ctx context.Context, table string, filters []Filter, order Order, out any) error
	Insert(ctx context.Context, table string, values map[string]any, out any) error
	Update(ctx context.Context, table string, values map[string]any, filters []Filter, out any) error
	Delete(ctx context.Context, table string, filters []Filter) error
	Count(ctx context.Context, table string, filters []Filter) (int, error)
}

// TokenSource supplies the caller's access token for row-level security.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

var knownTables = map[string]bool{
	domain.TableJobs:     true,
	domain.TableLinkedIn: true,
	domain.TableEmails:   true,
}

var errNoFilters = errors.New("store: refusing unfiltered write")

func checkTable(table string) error {
	if !knownTables[table] {
		return fmt.Errorf("store: unknown table %q", table)
	}
	return nil
}

// APIError is a rejection reported by the data store. The message is passed
// through verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is matches domain.ErrPermission for auth failures and row-level security denials.
func (e *APIError) Is(target error) bool {
	if target != domain.ErrPermission {
		return false
	}
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || e.Code == "42501"
}

// decodeRows converts generic rows into out through JSON, the same path
// rows take when they come from the REST API.
func decodeRows(rows any, out any) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
