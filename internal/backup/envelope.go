// Package backup builds, seals, validates and restores full snapshots of the
// attendance collection.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"prefect-attendance/internal/attendance"
)

// FormatVersion is written into every envelope.
const FormatVersion = "2.0"

type SystemInfo struct {
	App         string `json:"app"`
	Version     string `json:"version"`
	DeviceID    string `json:"deviceId,omitempty"`
	RecordCount int    `json:"recordCount"`
	Timezone    string `json:"timezone,omitempty"`
}

// Data is the checksummed part of an envelope.
type Data struct {
	Records       []attendance.Record             `json:"records"`
	BackupHistory []attendance.BackupHistoryEntry `json:"backupHistory"`
	ScanHistory   []attendance.ScanEntry          `json:"scanHistory"`
	LastExport    *time.Time                      `json:"lastExport,omitempty"`
}

// Aux carries the bookkeeping lists that travel with the records.
type Aux struct {
	BackupHistory []attendance.BackupHistoryEntry
	ScanHistory   []attendance.ScanEntry
	LastExport    *time.Time
}

func AuxFromMeta(m attendance.Meta) Aux {
	return Aux{BackupHistory: m.BackupHistory, ScanHistory: m.ScanHistory, LastExport: m.LastExport}
}

// Envelope keeps Data as raw JSON so the checksum is checked against exactly
// what was received.
type Envelope struct {
	Version    string          `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	SystemInfo SystemInfo      `json:"systemInfo"`
	Data       json.RawMessage `json:"data"`
	Checksum   string          `json:"checksum"`
}

// Create snapshots recs and aux into a checksummed envelope.
func Create(recs []attendance.Record, aux Aux, now time.Time, info SystemInfo) (Envelope, error) {
	d := Data{
		Records:       recs,
		BackupHistory: aux.BackupHistory,
		ScanHistory:   aux.ScanHistory,
		LastExport:    aux.LastExport,
	}
	if d.Records == nil {
		d.Records = []attendance.Record{}
	}
	if d.BackupHistory == nil {
		d.BackupHistory = []attendance.BackupHistoryEntry{}
	}
	if d.ScanHistory == nil {
		d.ScanHistory = []attendance.ScanEntry{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return Envelope{}, attendance.ErrInternal("encode backup data", err)
	}
	sum, err := Checksum(raw)
	if err != nil {
		return Envelope{}, attendance.ErrInternal("checksum backup data", err)
	}
	info.RecordCount = len(d.Records)
	return Envelope{
		Version:    FormatVersion,
		Timestamp:  now.UTC(),
		SystemInfo: info,
		Data:       raw,
		Checksum:   sum,
	}, nil
}

// Marshal renders the envelope as indented JSON, the plain file format.
func Marshal(env Envelope) ([]byte, error) {
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, attendance.ErrInternal("encode backup", err)
	}
	return b, nil
}

// Parse decodes a plain JSON envelope. It does not validate the checksum.
func Parse(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, attendance.ErrIntegrity("backup is not a valid envelope: " + err.Error())
	}
	return env, nil
}

// Validate recomputes the checksum and checks every record. Any problem fails
// the whole envelope.
func Validate(env Envelope) (Data, error) {
	switch {
	case strings.TrimSpace(env.Version) == "":
		return Data{}, attendance.ErrIntegrity("backup has no version")
	case len(env.Data) == 0 || string(env.Data) == "null":
		return Data{}, attendance.ErrIntegrity("backup has no data")
	case env.Checksum == "":
		return Data{}, attendance.ErrIntegrity("backup has no checksum")
	}
	sum, err := Checksum(env.Data)
	if err != nil {
		return Data{}, attendance.ErrIntegrity("backup data is malformed")
	}
	if sum != env.Checksum {
		return Data{}, attendance.ErrIntegrity(fmt.Sprintf("checksum mismatch: expected %s, got %s", env.Checksum, sum))
	}

	var d Data
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return Data{}, attendance.ErrIntegrity("backup data is malformed: " + err.Error())
	}
	if d.Records == nil {
		return Data{}, attendance.ErrIntegrity("backup has no records list")
	}
	for i, r := range d.Records {
		if err := r.Validate(); err != nil {
			return Data{}, attendance.ErrIntegrity(fmt.Sprintf("record %d: %v", i, err))
		}
	}
	return d, nil
}

// Restore replaces the stored collection with the envelope's records once the
// envelope validates. Nothing is written otherwise.
func Restore(ctx context.Context, store *attendance.Store, env Envelope) (int, error) {
	d, err := Validate(env)
	if err != nil {
		return 0, err
	}
	if err := store.Replace(ctx, d.Records); err != nil {
		return 0, err
	}
	return len(d.Records), nil
}
