package remotesync

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"prefect-attendance/internal/platform/db"
)

// SQLRemote keeps the two tables in MySQL, PostgreSQL or SQLite.
type SQLRemote struct {
	db      *sql.DB
	dialect string
}

func NewSQLRemote(conn *sql.DB, dialect string) *SQLRemote {
	return &SQLRemote{db: conn, dialect: dialect}
}

// OpenSQLRemote connects, then creates the tables if they are missing.
func OpenSQLRemote(ctx context.Context, driver, dsn string) (*SQLRemote, error) {
	conn, err := db.Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	r := NewSQLRemote(conn, driver)
	if err := r.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRemote) Close() error { return r.db.Close() }

// ===== schema =====

var schema = map[string][]string{
	db.DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			local_id       VARCHAR(64)  NOT NULL,
			device_id      VARCHAR(64)  NOT NULL,
			prefect_number VARCHAR(64)  NOT NULL,
			role           VARCHAR(32)  NOT NULL,
			recorded_at    DATETIME(3)  NOT NULL,
			date_key       VARCHAR(32)  NOT NULL,
			synced_at      DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			UNIQUE KEY uq_attendance_local_device (local_id, device_id),
			KEY idx_attendance_device (device_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_backups (
			id           VARCHAR(32) PRIMARY KEY,
			device_id    VARCHAR(64) NOT NULL,
			created_at   DATETIME(3) NOT NULL,
			record_count INT         NOT NULL,
			size_bytes   BIGINT      NOT NULL,
			checksum     VARCHAR(16) NOT NULL,
			version      VARCHAR(16) NOT NULL,
			KEY idx_backups_device_created (device_id, created_at)
		)`,
	},
	db.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id             BIGSERIAL PRIMARY KEY,
			local_id       VARCHAR(64) NOT NULL,
			device_id      VARCHAR(64) NOT NULL,
			prefect_number VARCHAR(64) NOT NULL,
			role           VARCHAR(32) NOT NULL,
			recorded_at    TIMESTAMPTZ NOT NULL,
			date_key       VARCHAR(32) NOT NULL,
			synced_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (local_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_device ON attendance_records (device_id)`,
		`CREATE TABLE IF NOT EXISTS attendance_backups (
			id           VARCHAR(32) PRIMARY KEY,
			device_id    VARCHAR(64) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			record_count INTEGER     NOT NULL,
			size_bytes   BIGINT      NOT NULL,
			checksum     VARCHAR(16) NOT NULL,
			version      VARCHAR(16) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backups_device_created ON attendance_backups (device_id, created_at)`,
	},
	db.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			local_id       TEXT     NOT NULL,
			device_id      TEXT     NOT NULL,
			prefect_number TEXT     NOT NULL,
			role           TEXT     NOT NULL,
			recorded_at    DATETIME NOT NULL,
			date_key       TEXT     NOT NULL,
			synced_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (local_id, device_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_device ON attendance_records (device_id)`,
		`CREATE TABLE IF NOT EXISTS attendance_backups (
			id           TEXT     PRIMARY KEY,
			device_id    TEXT     NOT NULL,
			created_at   DATETIME NOT NULL,
			record_count INTEGER  NOT NULL,
			size_bytes   INTEGER  NOT NULL,
			checksum     TEXT     NOT NULL,
			version      TEXT     NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backups_device_created ON attendance_backups (device_id, created_at)`,
	},
}

func (r *SQLRemote) Migrate(ctx context.Context) error {
	stmts, ok := schema[r.dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ===== records =====

func (r *SQLRemote) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (r *SQLRemote) upsertSQL() string {
	const cols = `INSERT INTO attendance_records
		(local_id, device_id, prefect_number, role, recorded_at, date_key, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, %s) `
	switch r.dialect {
	case db.DriverMySQL:
		return fmt.Sprintf(cols, "CURRENT_TIMESTAMP(3)") + `ON DUPLICATE KEY UPDATE
			prefect_number = VALUES(prefect_number),
			role           = VALUES(role),
			recorded_at    = VALUES(recorded_at),
			date_key       = VALUES(date_key),
			synced_at      = CURRENT_TIMESTAMP(3)`
	case db.DriverPostgres:
		return rebind(fmt.Sprintf(cols, "now()") + `ON CONFLICT (local_id, device_id) DO UPDATE SET
			prefect_number = EXCLUDED.prefect_number,
			role           = EXCLUDED.role,
			recorded_at    = EXCLUDED.recorded_at,
			date_key       = EXCLUDED.date_key,
			synced_at      = now()`)
	default:
		return fmt.Sprintf(cols, "CURRENT_TIMESTAMP") + `ON CONFLICT (local_id, device_id) DO UPDATE SET
			prefect_number = excluded.prefect_number,
			role           = excluded.role,
			recorded_at    = excluded.recorded_at,
			date_key       = excluded.date_key,
			synced_at      = CURRENT_TIMESTAMP`
	}
}

// UpsertRecords writes all rows in one transaction.
func (r *SQLRemote) UpsertRecords(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	q := r.upsertSQL()
	return db.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, q,
				row.LocalID, row.DeviceID, row.PrefectNumber, row.Role, row.RecordedAt.UTC(), row.DateKey,
			); err != nil {
				return fmt.Errorf("upsert %s: %w", row.LocalID, err)
			}
		}
		return nil
	})
}

func (r *SQLRemote) FetchRecords(ctx context.Context, deviceID string) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT local_id, device_id, prefect_number, role, recorded_at, date_key, synced_at
		FROM attendance_records
		WHERE device_id = ?
		ORDER BY recorded_at, id`), deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			row    Row
			synced sql.NullTime
		)
		if err := rows.Scan(&row.LocalID, &row.DeviceID, &row.PrefectNumber, &row.Role, &row.RecordedAt, &row.DateKey, &synced); err != nil {
			return nil, err
		}
		if synced.Valid {
			t := synced.Time
			row.SyncedAt = &t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLRemote) CountRecords(ctx context.Context, deviceID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM attendance_records WHERE device_id = ?`), deviceID).Scan(&n)
	return n, err
}

// ===== backups =====

func (r *SQLRemote) InsertBackup(ctx context.Context, m BackupMeta) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO attendance_backups (id, device_id, created_at, record_count, size_bytes, checksum, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.DeviceID, m.CreatedAt.UTC(), m.RecordCount, m.SizeBytes, m.Checksum, m.Version)
	if db.IsDuplicateKey(err) {
		// same upload recorded twice
		return nil
	}
	return err
}

func (r *SQLRemote) ListBackups(ctx context.Context, deviceID string) ([]BackupMeta, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, device_id, created_at, record_count, size_bytes, checksum, version
		FROM attendance_backups
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC`), deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BackupMeta{}
	for rows.Next() {
		var m BackupMeta
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.CreatedAt, &m.RecordCount, &m.SizeBytes, &m.Checksum, &m.Version); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLRemote) DeleteBackups(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := r.q(`DELETE FROM attendance_backups WHERE id = ?`)
	return db.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete backup %s: %w", id, err)
			}
		}
		return nil
	})
}

// q adapts ?-placeholders to the dialect.
func (r *SQLRemote) q(query string) string {
	if r.dialect == db.DriverPostgres {
		return rebind(query)
	}
	return query
}

// rebind turns ? into $1, $2, ... for lib/pq. Queries here never contain a
// literal question mark.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
