// Package remotesync mirrors the local attendance collection to a shared remote
// store and pulls it back.
package remotesync

import (
	"context"
	"time"

	"prefect-attendance/internal/attendance"
)

// Row is an attendance record as the remote store keeps it.
type Row struct {
	LocalID       string     `json:"local_id"`
	DeviceID      string     `json:"device_id"`
	PrefectNumber string     `json:"prefect_number"`
	Role          string     `json:"role"`
	RecordedAt    time.Time  `json:"recorded_at"`
	DateKey       string     `json:"date_key"`
	SyncedAt      *time.Time `json:"synced_at,omitempty"`
}

// BackupMeta is one remote upload descriptor.
type BackupMeta struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	CreatedAt   time.Time `json:"created_at"`
	RecordCount int       `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	Version     string    `json:"version"`
}

// Remote is a backend holding the records and backup tables. Implementations
// never retry; callers decide whether to call again.
type Remote interface {
	Ping(ctx context.Context) error
	// UpsertRecords inserts rows, overwriting any row with the same
	// (local_id, device_id). The remote sets synced_at.
	UpsertRecords(ctx context.Context, rows []Row) error
	FetchRecords(ctx context.Context, deviceID string) ([]Row, error)
	CountRecords(ctx context.Context, deviceID string) (int, error)

	InsertBackup(ctx context.Context, m BackupMeta) error
	// ListBackups returns the device's descriptors, newest first.
	ListBackups(ctx context.Context, deviceID string) ([]BackupMeta, error)
	DeleteBackups(ctx context.Context, ids []string) error

	Close() error
}

func toRow(r attendance.Record, deviceID string) Row {
	return Row{
		LocalID:       r.ID,
		DeviceID:      deviceID,
		PrefectNumber: r.PrefectNumber,
		Role:          string(r.Role),
		RecordedAt:    r.Timestamp.UTC(),
		DateKey:       r.Date,
	}
}

func (r Row) toRecord() (attendance.Record, error) {
	role, ok := attendance.ParseRole(r.Role)
	if !ok {
		return attendance.Record{}, attendance.ErrValidation("invalid role: " + r.Role)
	}
	rec := attendance.Record{
		ID:            r.LocalID,
		PrefectNumber: r.PrefectNumber,
		Role:          role,
		Timestamp:     r.RecordedAt,
		Date:          r.DateKey,
	}
	return rec, rec.Validate()
}
