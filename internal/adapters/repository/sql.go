package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/rsvp/internal/adapters/repository/migrations"
	"github.com/okian/rsvp/internal/domain/model"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLOption configures a SQLCollection.
type SQLOption func(*sqlOptions)

type sqlOptions struct {
	migrate bool
}

// WithAutoMigrate controls whether Open applies migrations (default true).
func WithAutoMigrate(enabled bool) SQLOption {
	return func(o *sqlOptions) {
		o.migrate = enabled
	}
}

// SQLCollection persists records in SQLite or Postgres.
type SQLCollection struct {
	db     *sql.DB
	driver string
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQL opens a database handle for driver and dsn.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...SQLOption) (*SQLCollection, error) {
	o := sqlOptions{migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := openDB(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if o.migrate {
		if err := Migrate(ctx, db, driver); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLCollection{db: db, driver: driver}, nil
}

func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", driver)
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer; serialize on one connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}
	return db, nil
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	dialect := "postgres"
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrateDSN opens driver/dsn, applies migrations and closes the handle.
func MigrateDSN(ctx context.Context, driver, dsn string) error {
	db, err := openDB(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return Migrate(ctx, db, driver)
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *SQLCollection) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLCollection) Insert(ctx context.Context, partition string, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if !validPartition(partition) {
		return fmt.Errorf("%w: %q", ErrInvalidPartition, partition)
	}
	if !validRecord(rec) {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO rsvps (
		   id, partition_path, name, email, guests,
		   favorite_games, dietary, created_at, user_id
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID,
		partition,
		rec.Name,
		rec.Email,
		rec.Guests,
		rec.FavoriteGames,
		rec.Dietary,
		toMillis(rec.CreatedAt),
		rec.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ID)
		}
		return fmt.Errorf("insert rsvp: %w", err)
	}
	return nil
}

func (s *SQLCollection) List(ctx context.Context, partition string) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if !validPartition(partition) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartition, partition)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, name, email, guests, favorite_games, dietary, created_at, user_id
		   FROM rsvps
		  WHERE partition_path = ?
		  ORDER BY created_at, id`), partition)
	if err != nil {
		return nil, fmt.Errorf("list rsvps: %w", err)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		var rec model.Record
		var createdAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.Email,
			&rec.Guests,
			&rec.FavoriteGames,
			&rec.Dietary,
			&createdAt,
			&rec.UserID,
		); err != nil {
			return nil, fmt.Errorf("list rsvps: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rsvps: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *SQLCollection) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Open returns the collection selected by driver.
func Open(ctx context.Context, driver, dsn string) (Collection, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryCollection(), nil
	case DriverSQLite, DriverPostgres:
		return OpenSQL(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

var _ Collection = (*SQLCollection)(nil)
