package repository

import (
	"context"
	"fmt"
	"strings"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/store"
)

const (
	ownerColumn   = "user_id"
	idColumn      = "id"
	createdColumn = "created_at"
)

// Repository is the owner-scoped read/write contract for one table.
type Repository[E domain.Entity, F domain.Fields] interface {
	List(ctx context.Context, owner string) ([]E, error)
	Create(ctx context.Context, owner string, fields F) (E, error)
	Update(ctx context.Context, id, owner string, fields F) (E, error)
	Delete(ctx context.Context, id, owner string) error
	Count(ctx context.Context, owner string) (int, error)
}

// Table implements Repository over a store table. Every query carries the
// owner filter, so isolation holds even where the store has no row-level
// security.
type Table[E domain.Entity, F domain.Fields] struct {
	store store.Store
	name  string
}

func NewTable[E domain.Entity, F domain.Fields](s store.Store, name string) *Table[E, F] {
	return &Table[E, F]{store: s, name: name}
}

func Jobs(s store.Store) *Table[domain.Job, domain.JobFields] {
	return NewTable[domain.Job, domain.JobFields](s, domain.TableJobs)
}

func LinkedIn(s store.Store) *Table[domain.LinkedInContact, domain.LinkedInFields] {
	return NewTable[domain.LinkedInContact, domain.LinkedInFields](s, domain.TableLinkedIn)
}

func Emails(s store.Store) *Table[domain.ColdEmail, domain.EmailFields] {
	return NewTable[domain.ColdEmail, domain.EmailFields](s, domain.TableEmails)
}

// Name returns the table name.
func (t *Table[E, F]) Name() string {
	return t.name
}

// List returns the owner's rows, newest first. An empty owner yields no rows.
func (t *Table[E, F]) List(ctx context.Context, owner string) ([]E, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return []E{}, nil
	}
	rows := []E{}
	order := store.Order{Column: createdColumn, Desc: true}
	if err := t.store.Select(ctx, t.name, ownerFilter(owner), order, &rows); err != nil {
		return nil, err
	}
	return keepOwned(rows, owner), nil
}

// Create validates fields locally, then inserts them under owner.
func (t *Table[E, F]) Create(ctx context.Context, owner string, fields F) (E, error) {
	var zero E
	if err := fields.Validate(); err != nil {
		return zero, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return zero, domain.ErrAuthRequired
	}
	values := fields.Values()
	values[ownerColumn] = owner
	var rows []E
	if err := t.store.Insert(ctx, t.name, values, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("create %s: %w", t.name, domain.ErrPermission)
	}
	return rows[0], nil
}

// Update replaces the mutable fields of the owner's row id. A row that does
// not exist or belongs to someone else yields ErrPermission.
func (t *Table[E, F]) Update(ctx context.Context, id, owner string, fields F) (E, error) {
	var zero E
	if err := fields.Validate(); err != nil {
		return zero, err
	}
	filters, err := rowFilter(id, owner)
	if err != nil {
		return zero, err
	}
	var rows []E
	if err := t.store.Update(ctx, t.name, fields.Values(), filters, &rows); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("update %s %s: %w", t.name, id, domain.ErrPermission)
	}
	return rows[0], nil
}

// Delete removes the owner's row id. Deleting a missing row is a no-op.
func (t *Table[E, F]) Delete(ctx context.Context, id, owner string) error {
	filters, err := rowFilter(id, owner)
	if err != nil {
		return err
	}
	return t.store.Delete(ctx, t.name, filters)
}

// Count returns the number of rows the owner has.
func (t *Table[E, F]) Count(ctx context.Context, owner string) (int, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return 0, nil
	}
	return t.store.Count(ctx, t.name, ownerFilter(owner))
}

func ownerFilter(owner string) []store.Filter {
	return []store.Filter{store.Eq(ownerColumn, owner)}
}

func rowFilter(id, owner string) ([]store.Filter, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, domain.ErrAuthRequired
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &domain.ValidationError{Field: "id", Message: "id is required"}
	}
	return []store.Filter{store.Eq(idColumn, id), store.Eq(ownerColumn, owner)}, nil
}

// keepOwned drops rows that do not belong to owner, in case a store ignores
// a filter.
func keepOwned[E domain.Entity](rows []E, owner string) []E {
	out := rows[:0]
	for _, row := range rows {
		if row.OwnerID() == owner {
			out = append(out, row)
		}
	}
	return out
}
