package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/rs/zerolog/log"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps a *sql.DB with the dialect quirks of the configured driver.
// Queries are written with '?' placeholders and rebound for Postgres.
type DB struct {
	db     *sql.DB
	driver string
}

// Open connects to driver ("postgres" or "sqlite") and pings the database.
// SQLite connections are capped at one so writers serialize.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, errors.Errorf("[sqlstore.Open] unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlstore.Open] open")
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[sqlstore.Open] ping")
	}
	log.Debug().Str("driver", driver).Msg("database connection established")
	return &DB{db: db, driver: driver}, nil
}

// sqliteDSN adds the pragmas the store relies on unless the caller set any.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// Migrate applies every pending embedded migration.
func (d *DB) Migrate(ctx context.Context) error {
	provider, err := d.migrationProvider()
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "[Migrate] apply migrations")
	}
	for _, r := range results {
		log.Info().Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (d *DB) MigrationVersion(ctx context.Context) (int64, error) {
	provider, err := d.migrationProvider()
	if err != nil {
		return 0, err
	}
	v, err := provider.GetDBVersion(ctx)
	return v, errors.Wrap(err, "[MigrationVersion]")
}

func (d *DB) migrationProvider() (*goose.Provider, error) {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "[migrationProvider] sub filesystem")
	}
	dialect := database.DialectSQLite3
	if d.driver == DriverPostgres {
		dialect = database.DialectPostgres
	}
	provider, err := goose.NewProvider(dialect, d.db, migrationFS)
	if err != nil {
		return nil, errors.Wrap(err, "[migrationProvider] goose provider")
	}
	return provider, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind rewrites '?' placeholders as $1..$n for Postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
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

// lockClause returns the row-lock suffix for SELECTs inside a transaction.
// SQLite has no row locks; its single connection already serializes.
func (d *DB) lockClause() string {
	if d.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (d *DB) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, d.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer rollback(tx)
	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// rollback ignores errors because tx may already be committed.
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// isUniqueViolation reports a primary key or unique constraint failure
// from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}

func decodeList(s string) ([]string, error) {
	var list []string
	if s == "" {
		return list, nil
	}
	err := json.Unmarshal([]byte(s), &list)
	return list, err
}

// Timestamps are stored as Unix nanoseconds so both dialects round-trip
// them exactly.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
