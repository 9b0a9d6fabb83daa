package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"jobhunt/pkg/domain"
)

const migrateLockID int64 = 51734021

type GormStoreOptions struct {
	AutoMigrate bool
	LogLevel    gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithAutoMigrate creates or updates the tables on open. Leave it off when
// the schema is managed by the hosted backend.
func WithAutoMigrate(enabled bool) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.AutoMigrate = enabled
	}
}

// WithLogLevel sets the GORM logger level.
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store against the backend's Postgres database
// directly. There is no row-level security on this path, so callers must
// always pass owner filters.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and optionally runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if opts.AutoMigrate {
		if err := withMigrationLock(db, func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&JobModel{}, &LinkedInContactModel{}, &ColdEmailModel{}); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) Select(ctx context.Context, table string, filters []Filter, order Order, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if matchesNothing(filters) {
		return decodeRows([]map[string]any{}, out)
	}
	q := scoped(s.db.WithContext(ctx).Table(table), filters)
	if order.Column != "" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: order.Column}, Desc: order.Desc})
	}
	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return decodeRows(normalizeRows(rows), out)
}

func (s *GormStore) Insert(ctx context.Context, table string, values map[string]any, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if owner, ok := values["user_id"].(string); ok && !isUUID(owner) {
		return fmt.Errorf("insert %s: owner %q: %w", table, owner, domain.ErrPermission)
	}
	row := cloneRow(values)
	now := time.Now().UTC()
	id := uuid.NewString()
	row["id"] = id
	row["created_at"] = now
	row["updated_at"] = now
	if err := s.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return s.Select(ctx, table, []Filter{Eq("id", id)}, Order{}, out)
}

func (s *GormStore) Update(ctx context.Context, table string, values map[string]any, filters []Filter, out any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return errNoFilters
	}
	if matchesNothing(filters) {
		return decodeRows([]map[string]any{}, out)
	}
	row := cloneRow(values)
	for _, k := range []string{"id", "user_id", "created_at"} {
		delete(row, k)
	}
	row["updated_at"] = time.Now().UTC()
	res := scoped(s.db.WithContext(ctx).Table(table), filters).Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return decodeRows([]map[string]any{}, out)
	}
	return s.Select(ctx, table, filters, Order{}, out)
}

func (s *GormStore) Delete(ctx context.Context, table string, filters []Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return errNoFilters
	}
	if matchesNothing(filters) {
		return nil
	}
	if err := scoped(s.db.WithContext(ctx), filters).Delete(modelFor(table)).Error; err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context, table string, filters []Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	if matchesNothing(filters) {
		return 0, nil
	}
	var n int64
	if err := scoped(s.db.WithContext(ctx).Model(modelFor(table)), filters).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return int(n), nil
}

// matchesNothing reports whether a filter compares a uuid column with a value
// that is not a uuid. Postgres rejects such a comparison outright, and no row
// can match it.
func matchesNothing(filters []Filter) bool {
	for _, f := range filters {
		if (f.Column == "id" || f.Column == "user_id") && !isUUID(f.Value) {
			return true
		}
	}
	return false
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func scoped(q *gorm.DB, filters []Filter) *gorm.DB {
	for _, f := range filters {
		q = q.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: f.Value})
	}
	return q
}

// normalizeRows turns driver byte slices into strings so they encode as text.
func normalizeRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
	}
	return rows
}
