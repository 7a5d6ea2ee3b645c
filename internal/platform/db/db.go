package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Drivers accepted by Connect.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens and pings a remote store database.
func Connect(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverMySQL:
		var err error
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// single writer; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
		return db, nil
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// normalizeMySQLDSN forces parseTime and UTC so DATETIME columns scan into
// time.Time the same way on every server.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return cfg.FormatDSN(), nil
}

// IsDuplicateKey reports a unique-key violation on any supported driver.
func IsDuplicateKey(err error) bool {
	var (
		me *mysql.MySQLError
		pe *pq.Error
		se sqlite3.Error
	)
	switch {
	case errors.As(err, &me):
		return me.Number == 1062
	case errors.As(err, &pe):
		return pe.Code == "23505"
	case errors.As(err, &se):
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
