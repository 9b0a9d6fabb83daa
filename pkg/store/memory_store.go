package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps rows in-process. It mirrors the hosted store's
// semantics closely enough for tests and offline use: generated ids,
// store-assigned monotonic timestamps, equality filters and stable ordering.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
	now    func() time.Time
	last   time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]map[string]any),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Select(_ context.Context, table string, filters []Filter, order Order, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.RLock()
	rows := make([]map[string]any, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			rows = append(rows, cloneRow(row))
		}
	}
	m.mu.RUnlock()
	if order.Column != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := compareValues(rows[i][order.Column], rows[j][order.Column])
			if order.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	return decodeRows(rows, out)
}

func (m *MemoryStore) Insert(_ context.Context, table string, values map[string]any, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	row := cloneRow(values)
	now := m.tick()
	row["id"] = uuid.NewString()
	row["created_at"] = now
	row["updated_at"] = now
	m.tables[table] = append(m.tables[table], row)
	created := cloneRow(row)
	m.mu.Unlock()
	return decodeRows([]map[string]any{created}, out)
}

func (m *MemoryStore) Update(_ context.Context, table string, values map[string]any, filters []Filter, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return errNoFilters
	}
	m.mu.Lock()
	updated := make([]map[string]any, 0, 1)
	for _, row := range m.tables[table] {
		if !matches(row, filters) {
			continue
		}
		for k, v := range values {
			switch k {
			case "id", "user_id", "created_at", "updated_at":
				continue
			}
			row[k] = v
		}
		row["updated_at"] = m.tick()
		updated = append(updated, cloneRow(row))
	}
	m.mu.Unlock()
	return decodeRows(updated, out)
}

func (m *MemoryStore) Delete(_ context.Context, table string, filters []Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return errNoFilters
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tables[table][:0]
	for _, row := range m.tables[table] {
		if !matches(row, filters) {
			kept = append(kept, row)
		}
	}
	m.tables[table] = kept
	return nil
}

func (m *MemoryStore) Count(_ context.Context, table string, filters []Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			n++
		}
	}
	return n, nil
}

// tick returns a timestamp strictly after the previous one. Callers hold mu.
func (m *MemoryStore) tick() time.Time {
	now := m.now()
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}

func matches(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok || v == nil || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
