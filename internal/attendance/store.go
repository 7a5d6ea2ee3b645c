package attendance

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"prefect-attendance/internal/platform/kv"
)

// Durable keys.
const (
	KeyRecords  = "prefect.records"
	KeyMeta     = "prefect.meta"
	KeyDeviceID = "prefect.device_id"
	KeySync     = "prefect.sync"
)

const (
	DefaultRetentionDays = 14
	DefaultDateLayout    = "1/2/2006"
)

// ===== injected dependencies =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function (typically a fixed time in tests) to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type IDGen interface {
	New(t time.Time) (string, error)
}

type ulidGen struct{}

func (ulidGen) New(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Options struct {
	Location   *time.Location
	DateLayout string
	Clock      Clock
	IDGen      IDGen
	Logger     *zap.Logger
}

// ===== Store =====

// Store owns the canonical record collection. Every mutation reads the whole
// collection, modifies a copy and writes it back in one Set; the durable value
// is only replaced after the new one has been serialised.
type Store struct {
	kv     kv.Storage
	loc    *time.Location
	layout string
	clock  Clock
	id     IDGen
	log    *zap.Logger

	mu sync.Mutex
}

func NewStore(storage kv.Storage, opts Options) *Store {
	s := &Store{
		kv:     storage,
		loc:    opts.Location,
		layout: opts.DateLayout,
		clock:  opts.Clock,
		id:     opts.IDGen,
		log:    opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.layout == "" {
		s.layout = DefaultDateLayout
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.id == nil {
		s.id = ulidGen{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *Store) Now() time.Time { return s.clock.Now() }

func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) KV() kv.Storage { return s.kv }

// DateKey formats t the way Record.Date is formatted.
func (s *Store) DateKey(t time.Time) string {
	return t.In(s.loc).Format(s.layout)
}

// NewRecord builds a validated record with a fresh id and its date key.
func (s *Store) NewRecord(prefectNumber string, role Role, ts time.Time) (Record, error) {
	id, err := s.id.New(ts)
	if err != nil {
		return Record{}, ErrInternal("generate id", err)
	}
	rec := Record{
		ID:            id,
		PrefectNumber: strings.TrimSpace(prefectNumber),
		Role:          role,
		Timestamp:     ts,
		Date:          s.DateKey(ts),
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Mark records attendance for prefectNumber now, or at *at for manual entry.
func (s *Store) Mark(ctx context.Context, prefectNumber string, role Role, at *time.Time) (Record, error) {
	ts := s.clock.Now()
	if at != nil {
		if at.IsZero() {
			return Record{}, ErrValidation("timestamp is invalid")
		}
		ts = *at
	}
	rec, err := s.NewRecord(prefectNumber, role, ts)
	if err != nil {
		return Record{}, err
	}
	return s.Append(ctx, rec)
}

// Append adds rec to the end of the collection. Duplicates are accepted.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}
	next := append(recs[:len(recs):len(recs)], rec)
	if err := s.save(ctx, next); err != nil {
		return Record{}, err
	}
	s.log.Info("attendance appended", zap.String("op", "append"), zap.String("role", string(rec.Role)), zap.Int("total", len(next)))
	return rec, nil
}

// AppendBulk validates each entry, stamps the valid ones with the current time
// and appends them all in a single write.
func (s *Store) AppendBulk(ctx context.Context, entries []BulkEntry) (BulkResult, error) {
	res := BulkResult{Success: []BulkSuccess{}, Errors: []BulkError{}}
	now := s.clock.Now()
	seen := make(map[string]struct{}, len(entries))
	var fresh []Record

	for _, e := range entries {
		number := strings.TrimSpace(e.PrefectNumber)
		fail := func(reason string) {
			res.Errors = append(res.Errors, BulkError{PrefectNumber: e.PrefectNumber, Role: e.Role, Reason: reason})
		}
		if number == "" {
			fail("prefect number is required")
			continue
		}
		if strings.TrimSpace(e.Role) == "" {
			fail("role is required")
			continue
		}
		role, ok := ParseRole(e.Role)
		if !ok {
			fail("invalid role")
			continue
		}
		key := number + "\x00" + string(role)
		if _, dup := seen[key]; dup {
			fail("duplicate entry in batch")
			continue
		}
		seen[key] = struct{}{}

		rec, err := s.NewRecord(number, role, now)
		if err != nil {
			fail(err.Error())
			continue
		}
		fresh = append(fresh, rec)
		res.Success = append(res.Success, BulkSuccess{PrefectNumber: number, Role: role})
	}

	if len(fresh) == 0 {
		return res, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	next := append(recs[:len(recs):len(recs)], fresh...)
	if err := s.save(ctx, next); err != nil {
		return BulkResult{}, err
	}
	s.log.Info("bulk attendance appended", zap.String("op", "appendBulk"),
		zap.Int("accepted", len(res.Success)), zap.Int("rejected", len(res.Errors)), zap.Int("total", len(next)))
	return res, nil
}

// Import appends (or, with replace, substitutes) already-built records in one write.
func (s *Store) Import(ctx context.Context, recs []Record, replace bool) (int, error) {
	for i := range recs {
		if err := recs[i].Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var next []Record
	if replace {
		next = make([]Record, len(recs))
		copy(next, recs)
	} else {
		cur, err := s.load(ctx)
		if err != nil {
			return 0, err
		}
		next = append(cur[:len(cur):len(cur)], recs...)
	}
	if err := s.save(ctx, next); err != nil {
		return 0, err
	}
	s.log.Info("attendance imported", zap.String("op", "import"), zap.Bool("replace", replace), zap.Int("imported", len(recs)), zap.Int("total", len(next)))
	return len(recs), nil
}

// Replace swaps the whole collection for recs (restore / remote download).
func (s *Store) Replace(ctx context.Context, recs []Record) error {
	_, err := s.Import(ctx, recs, true)
	return err
}

// GetAll returns a copy of the collection in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Clear empties the collection. Callers confirm with the operator first.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(ctx, []Record{}); err != nil {
		return err
	}
	s.log.Warn("attendance cleared", zap.String("op", "clear"))
	return nil
}

// EvictOlderThan drops every record older than now - days and returns how many
// were removed. Running it again without new old records removes nothing.
func (s *Store) EvictOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.Lock()
	recs, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	kept := make([]Record, 0, len(recs))
	for _, r := range recs {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(recs) - len(kept)
	if removed > 0 {
		if err := s.save(ctx, kept); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	s.mu.Unlock()

	if err := s.UpdateMeta(ctx, func(m *Meta) {
		m.RetentionDays = days
		m.LastCleanup = &now
	}); err != nil {
		// the records are already consistent; only the bookkeeping is stale
		s.log.Warn("cleanup bookkeeping not saved", zap.Error(err))
	}
	s.log.Info("retention cleanup", zap.String("op", "evict"), zap.Int("days", days), zap.Int("removed", removed), zap.Int("kept", len(kept)))
	return removed, nil
}

// Search returns every record whose prefect number equals prefectNumber.
func (s *Store) Search(ctx context.Context, prefectNumber string) ([]Record, error) {
	q := strings.TrimSpace(prefectNumber)
	recs, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range recs {
		if r.PrefectNumber == q {
			out = append(out, r)
		}
	}
	return out, nil
}

// ===== bookkeeping =====

func (s *Store) Meta(ctx context.Context) (Meta, error) {
	var m Meta
	err := s.readJSON(ctx, KeyMeta, &m)
	if m.RetentionDays == 0 {
		m.RetentionDays = DefaultRetentionDays
	}
	return m, err
}

// UpdateMeta applies fn to the stored bookkeeping document and writes it back.
func (s *Store) UpdateMeta(ctx context.Context, fn func(*Meta)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.Meta(ctx)
	if err != nil {
		return err
	}
	fn(&m)
	return s.writeJSON(ctx, KeyMeta, m)
}

// ReadJSON / WriteJSON give sibling packages (remotesync) access to their own
// keys with the same error semantics as the record collection.
func (s *Store) ReadJSON(ctx context.Context, key string, v any) error { return s.readJSON(ctx, key, v) }

func (s *Store) WriteJSON(ctx context.Context, key string, v any) error {
	return s.writeJSON(ctx, key, v)
}

// ===== helpers =====

func (s *Store) load(ctx context.Context) ([]Record, error) {
	var recs []Record
	if err := s.readJSON(ctx, KeyRecords, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

func (s *Store) save(ctx context.Context, recs []Record) error {
	return s.writeJSON(ctx, KeyRecords, recs)
}

// readJSON leaves v untouched when key has never been written.
func (s *Store) readJSON(ctx context.Context, key string, v any) error {
	b, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Error("storage read failed", zap.String("key", key), zap.Error(err))
		return ErrStorage("read "+key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.log.Error("stored document is corrupt", zap.String("key", key), zap.Error(err))
		return ErrStorage("decode "+key, err)
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrStorage("encode "+key, err)
	}
	if err := s.kv.Set(ctx, key, b); err != nil {
		s.log.Error("storage write failed", zap.String("key", key), zap.Int("bytes", len(b)), zap.Error(err))
		return ErrStorage("write "+key, err)
	}
	return nil
}
