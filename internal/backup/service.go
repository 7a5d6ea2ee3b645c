package backup

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"prefect-attendance/internal/attendance"
)

const filePrefix = "prefect-backup-"

type Config struct {
	Dir        string
	Keep       int
	Mode       Mode
	Passphrase string
	Info       SystemInfo
}

type Service struct {
	store *attendance.Store
	cfg   Config
	log   *zap.Logger

	mu      sync.Mutex // serialises writes into cfg.Dir
	entropy io.Reader  // monotonic, so names taken in one millisecond still sort
}

func NewService(store *attendance.Store, cfg Config, log *zap.Logger) *Service {
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePlain
		if cfg.Passphrase != "" {
			cfg.Mode = ModeSealed
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, log: log}
}

// Snapshot builds an envelope from the current store contents.
func (s *Service) Snapshot(ctx context.Context) (Envelope, error) {
	recs, err := s.store.GetAll(ctx)
	if err != nil {
		return Envelope{}, err
	}
	meta, err := s.store.Meta(ctx)
	if err != nil {
		return Envelope{}, err
	}
	info := s.cfg.Info
	var device string
	if err := s.store.ReadJSON(ctx, attendance.KeyDeviceID, &device); err == nil {
		info.DeviceID = device
	}
	return Create(recs, AuxFromMeta(meta), s.store.Now(), info)
}

// Export renders a backup file for download and stamps Meta.LastExport.
func (s *Service) Export(ctx context.Context, mode Mode, passphrase string) ([]byte, Envelope, error) {
	env, err := s.Snapshot(ctx)
	if err != nil {
		return nil, Envelope{}, err
	}
	b, err := EncodeFile(env, mode, passphrase)
	if err != nil {
		return nil, Envelope{}, err
	}
	now := s.store.Now()
	if err := s.store.UpdateMeta(ctx, func(m *attendance.Meta) { m.LastExport = &now }); err != nil {
		s.log.Warn("last export not recorded", zap.Error(err))
	}
	s.log.Info("backup exported", zap.String("op", "export"), zap.String("mode", string(mode)),
		zap.Int("records", env.SystemInfo.RecordCount), zap.Int("bytes", len(b)))
	return b, env, nil
}

// Inspect opens and validates raw without touching the store.
func (s *Service) Inspect(raw []byte, passphrase string) (Envelope, Data, error) {
	env, err := OpenFile(raw, passphrase)
	if err != nil {
		return Envelope{}, Data{}, err
	}
	d, err := Validate(env)
	if err != nil {
		return Envelope{}, Data{}, err
	}
	return env, d, nil
}

// Import restores the store from a backup file in any mode.
func (s *Service) Import(ctx context.Context, raw []byte, passphrase string) (int, error) {
	env, err := OpenFile(raw, passphrase)
	if err != nil {
		s.log.Warn("backup rejected", zap.String("op", "restore"), zap.String("code", string(attendance.CodeOf(err))))
		return 0, err
	}
	n, err := Restore(ctx, s.store, env)
	if err != nil {
		s.log.Warn("backup rejected", zap.String("op", "restore"), zap.String("code", string(attendance.CodeOf(err))))
		return 0, err
	}
	s.log.Info("backup restored", zap.String("op", "restore"), zap.Int("records", n))
	return n, nil
}

// WriteLocal writes a backup into the configured directory, records it in the
// backup history and prunes the oldest files beyond Keep.
func (s *Service) WriteLocal(ctx context.Context) (attendance.BackupHistoryEntry, error) {
	if s.cfg.Dir == "" {
		return attendance.BackupHistoryEntry{}, attendance.ErrValidation("backup directory is not configured")
	}
	env, err := s.Snapshot(ctx)
	if err != nil {
		return attendance.BackupHistoryEntry{}, err
	}
	b, err := EncodeFile(env, s.cfg.Mode, s.cfg.Passphrase)
	if err != nil {
		return attendance.BackupHistoryEntry{}, err
	}

	name, err := s.writeFile(env.Timestamp, b)
	if err != nil {
		s.log.Error("local backup failed", zap.String("dir", s.cfg.Dir), zap.Error(err))
		return attendance.BackupHistoryEntry{}, attendance.ErrStorage("write backup into "+s.cfg.Dir, err)
	}
	entry := attendance.BackupHistoryEntry{
		File:      name,
		CreatedAt: env.Timestamp,
		Records:   env.SystemInfo.RecordCount,
		Size:      int64(len(b)),
		Checksum:  env.Checksum,
	}
	if err := s.store.UpdateMeta(ctx, func(m *attendance.Meta) { m.AddBackup(entry) }); err != nil {
		s.log.Warn("backup history not recorded", zap.Error(err))
	}
	if removed, err := s.prune(); err != nil {
		s.log.Warn("pruning old backups failed", zap.Error(err))
	} else if removed > 0 {
		s.log.Info("old backups pruned", zap.Int("removed", removed))
	}
	s.log.Info("local backup written", zap.String("op", "autoBackup"), zap.String("file", name),
		zap.Int("records", entry.Records), zap.Int64("bytes", entry.Size))
	return entry, nil
}

// ReadLocal returns the bytes of a file previously written by WriteLocal.
func (s *Service) ReadLocal(name string) ([]byte, error) {
	if name != filepath.Base(name) || !strings.HasPrefix(name, filePrefix) {
		return nil, attendance.ErrValidation("invalid backup file name")
	}
	b, err := os.ReadFile(filepath.Join(s.cfg.Dir, name))
	if os.IsNotExist(err) {
		return nil, attendance.ErrNotFound("backup not found: " + name)
	}
	if err != nil {
		return nil, attendance.ErrStorage("read backup "+name, err)
	}
	return b, nil
}

func (s *Service) History(ctx context.Context) ([]attendance.BackupHistoryEntry, error) {
	m, err := s.store.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if m.BackupHistory == nil {
		return []attendance.BackupHistoryEntry{}, nil
	}
	return m.BackupHistory, nil
}

// Run writes a local backup every interval until ctx is done. Failures are
// logged and the loop keeps going.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.WriteLocal(ctx); err != nil {
				s.log.Warn("auto backup failed", zap.Error(err))
			}
		}
	}
}

// writeFile stores b under a fresh name and returns it: the UTC second, then a
// ULID, so backups taken in the same second get distinct files that still sort
// oldest first. Temp file then rename, so a crash leaves no partial backup.
func (s *Service) writeFile(at time.Time, b []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", err
	}
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(at), s.entropy)
	if err != nil {
		return "", err
	}
	name := filePrefix + at.UTC().Format("20060102T150405Z") + "-" + id.String() + s.cfg.Mode.Ext()

	path := filepath.Join(s.cfg.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return name, nil
}

func (s *Service) prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(n, filePrefix) && !strings.HasSuffix(n, ".tmp") {
			names = append(names, n)
		}
	}
	if len(names) <= s.cfg.Keep {
		return 0, nil
	}
	// names embed a sortable UTC timestamp
	sort.Strings(names)
	removed := 0
	for _, n := range names[:len(names)-s.cfg.Keep] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, n)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", n, err)
		}
		removed++
	}
	return removed, nil
}
