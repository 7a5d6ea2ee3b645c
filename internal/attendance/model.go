package attendance

import (
	"strings"
	"time"
)

// Record is one attendance mark. It is never mutated after creation.
type Record struct {
	ID            string    `json:"id"`
	PrefectNumber string    `json:"prefectNumber"`
	Role          Role      `json:"role"`
	Timestamp     time.Time `json:"timestamp"`
	// Date is the locale day string computed from Timestamp at creation; it is
	// the grouping key for daily stats and is not recomputed later.
	Date string `json:"date"`
}

// Validate reports the first missing or malformed field.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return ErrValidation("id is required")
	case strings.TrimSpace(r.PrefectNumber) == "":
		return ErrValidation("prefectNumber is required")
	case r.Role == "":
		return ErrValidation("role is required")
	case !r.Role.Valid():
		return ErrValidation("invalid role: " + string(r.Role))
	case r.Timestamp.IsZero():
		return ErrValidation("timestamp is required")
	case strings.TrimSpace(r.Date) == "":
		return ErrValidation("date is required")
	}
	return nil
}

// BulkEntry is one row of a bulk submission.
type BulkEntry struct {
	PrefectNumber string `json:"prefectNumber"`
	Role          string `json:"role"`
}

type BulkSuccess struct {
	PrefectNumber string `json:"prefectNumber"`
	Role          Role   `json:"role"`
}

type BulkError struct {
	PrefectNumber string `json:"prefectNumber"`
	Role          string `json:"role"`
	Reason        string `json:"reason"`
}

type BulkResult struct {
	Success []BulkSuccess `json:"success"`
	Errors  []BulkError   `json:"errors"`
}

// Meta is the retention / backup bookkeeping document.
type Meta struct {
	RetentionDays int                  `json:"retentionDays"`
	LastCleanup   *time.Time           `json:"lastCleanup,omitempty"`
	LastExport    *time.Time           `json:"lastExport,omitempty"`
	BackupHistory []BackupHistoryEntry `json:"backupHistory"`
	ScanHistory   []ScanEntry          `json:"scanHistory"`
}

type BackupHistoryEntry struct {
	File      string    `json:"file"`
	CreatedAt time.Time `json:"createdAt"`
	Records   int       `json:"records"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
}

type ScanEntry struct {
	PrefectNumber string    `json:"prefectNumber"`
	Role          Role      `json:"role"`
	RecordID      string    `json:"recordId"`
	ScannedAt     time.Time `json:"scannedAt"`
}

const (
	maxBackupHistory = 20
	maxScanHistory   = 50
)

// AddBackup prepends e, keeping the newest entries only.
func (m *Meta) AddBackup(e BackupHistoryEntry) {
	m.BackupHistory = append([]BackupHistoryEntry{e}, m.BackupHistory...)
	if len(m.BackupHistory) > maxBackupHistory {
		m.BackupHistory = m.BackupHistory[:maxBackupHistory]
	}
}

// AddScan prepends e, keeping the newest entries only.
func (m *Meta) AddScan(e ScanEntry) {
	m.ScanHistory = append([]ScanEntry{e}, m.ScanHistory...)
	if len(m.ScanHistory) > maxScanHistory {
		m.ScanHistory = m.ScanHistory[:maxScanHistory]
	}
}
