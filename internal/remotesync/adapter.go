package remotesync

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/backup"
)

const DefaultKeepBackups = 10

// State is the sync bookkeeping kept under attendance.KeySync.
type State struct {
	LastSync     *time.Time `json:"lastSync,omitempty"`
	LastUploaded int        `json:"lastUploaded"`
	RemoteCount  int        `json:"remoteCount"`
	LastError    string     `json:"lastError,omitempty"`
	LastErrorAt  *time.Time `json:"lastErrorAt,omitempty"`
}

type Status struct {
	Configured  bool       `json:"configured"`
	Connected   bool       `json:"connected"`
	Driver      string     `json:"driver,omitempty"`
	DeviceID    string     `json:"deviceId"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
	RemoteCount int        `json:"remoteCount"`
	LastError   string     `json:"lastError,omitempty"`
}

type UploadResult struct {
	DeviceID    string     `json:"deviceId"`
	Uploaded    int        `json:"uploaded"`
	RemoteCount int        `json:"remoteCount"`
	Backup      BackupMeta `json:"backup"`
}

// Adapter moves records between the local store and a Remote. A nil Remote
// means sync is not configured: every remote operation then fails with a
// connectivity error and CheckConnection reports false.
type Adapter struct {
	remote Remote
	driver string
	store  *attendance.Store
	info   backup.SystemInfo
	log    *zap.Logger

	deviceMu sync.Mutex
}

func NewAdapter(remote Remote, driver string, store *attendance.Store, info backup.SystemInfo, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{remote: remote, driver: driver, store: store, info: info, log: log}
}

func (a *Adapter) Configured() bool { return a.remote != nil }

func (a *Adapter) Close() error {
	if a.remote == nil {
		return nil
	}
	return a.remote.Close()
}

// DeviceID returns the identifier tagging this installation's rows, creating
// and persisting it on first use.
func (a *Adapter) DeviceID(ctx context.Context) (string, error) {
	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()

	var id string
	if err := a.store.ReadJSON(ctx, attendance.KeyDeviceID, &id); err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = "device_" + uuid.NewString()
	if err := a.store.WriteJSON(ctx, attendance.KeyDeviceID, id); err != nil {
		return "", err
	}
	a.log.Info("device id created", zap.String("device_id", id))
	return id, nil
}

// CheckConnection is a minimal round trip. It never returns an error.
func (a *Adapter) CheckConnection(ctx context.Context) bool {
	if a.remote == nil {
		return false
	}
	if err := a.remote.Ping(ctx); err != nil {
		a.log.Warn("remote unreachable", zap.String("driver", a.driver), zap.Error(err))
		return false
	}
	return true
}

// Upload upserts every local record keyed by (local id, device id) and adds a
// backup descriptor row. Local data is never modified.
func (a *Adapter) Upload(ctx context.Context) (UploadResult, error) {
	if a.remote == nil {
		return UploadResult{}, errNotConfigured()
	}
	device, err := a.DeviceID(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	recs, err := a.store.GetAll(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	meta, err := a.store.Meta(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	now := a.store.Now()
	info := a.info
	info.DeviceID = device
	env, err := backup.Create(recs, backup.AuxFromMeta(meta), now, info)
	if err != nil {
		return UploadResult{}, err
	}
	raw, err := backup.Marshal(env)
	if err != nil {
		return UploadResult{}, err
	}

	rows := make([]Row, len(recs))
	for i, r := range recs {
		rows[i] = toRow(r, device)
	}
	if err := a.remote.UpsertRecords(ctx, rows); err != nil {
		return UploadResult{}, a.fail(ctx, "upload", err)
	}

	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return UploadResult{}, attendance.ErrInternal("generate backup id", err)
	}
	bm := BackupMeta{
		ID:          id.String(),
		DeviceID:    device,
		CreatedAt:   now.UTC(),
		RecordCount: len(recs),
		SizeBytes:   int64(len(raw)),
		Checksum:    env.Checksum,
		Version:     env.Version,
	}
	if err := a.remote.InsertBackup(ctx, bm); err != nil {
		return UploadResult{}, a.fail(ctx, "upload", err)
	}
	count, err := a.remote.CountRecords(ctx, device)
	if err != nil {
		return UploadResult{}, a.fail(ctx, "upload", err)
	}

	a.saveState(ctx, func(s *State) {
		s.LastSync = &now
		s.LastUploaded = len(recs)
		s.RemoteCount = count
		s.LastError, s.LastErrorAt = "", nil
	})
	a.log.Info("records uploaded", zap.String("op", "upload"), zap.Int("records", len(recs)), zap.Int("remote_count", count))
	return UploadResult{DeviceID: device, Uploaded: len(recs), RemoteCount: count, Backup: bm}, nil
}

// Download returns this device's remote rows as local records. It does not
// touch the store; see ApplyDownload.
func (a *Adapter) Download(ctx context.Context) ([]attendance.Record, error) {
	if a.remote == nil {
		return nil, errNotConfigured()
	}
	device, err := a.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := a.remote.FetchRecords(ctx, device)
	if err != nil {
		return nil, a.fail(ctx, "download", err)
	}
	out := make([]attendance.Record, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	now := a.store.Now()
	a.saveState(ctx, func(s *State) {
		s.LastSync = &now
		s.RemoteCount = len(rows)
	})
	a.log.Info("records downloaded", zap.String("op", "download"), zap.Int("records", len(out)), zap.Int("skipped", skipped))
	return out, nil
}

// ApplyDownload replaces the local collection with recs. Callers only do this
// after the operator confirms.
func (a *Adapter) ApplyDownload(ctx context.Context, recs []attendance.Record) error {
	if err := a.store.Replace(ctx, recs); err != nil {
		return err
	}
	a.log.Warn("local records replaced from remote", zap.String("op", "download"), zap.Int("records", len(recs)))
	return nil
}

// Status combines a live connectivity check with the stored bookkeeping, which
// is only refreshed by explicit syncs.
func (a *Adapter) Status(ctx context.Context) (Status, error) {
	device, err := a.DeviceID(ctx)
	if err != nil {
		return Status{}, err
	}
	var st State
	if err := a.store.ReadJSON(ctx, attendance.KeySync, &st); err != nil {
		return Status{}, err
	}
	return Status{
		Configured:  a.remote != nil,
		Connected:   a.CheckConnection(ctx),
		Driver:      a.driver,
		DeviceID:    device,
		LastSync:    st.LastSync,
		RemoteCount: st.RemoteCount,
		LastError:   st.LastError,
	}, nil
}

// History lists this device's remote backup descriptors, newest first.
func (a *Adapter) History(ctx context.Context) ([]BackupMeta, error) {
	if a.remote == nil {
		return nil, errNotConfigured()
	}
	device, err := a.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	list, err := a.remote.ListBackups(ctx, device)
	if err != nil {
		return nil, a.fail(ctx, "history", err)
	}
	return list, nil
}

// PruneRemoteHistory deletes all but the newest keep descriptors for this
// device and returns how many were deleted.
func (a *Adapter) PruneRemoteHistory(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, attendance.ErrValidation("keep must not be negative")
	}
	list, err := a.History(ctx)
	if err != nil {
		return 0, err
	}
	if len(list) <= keep {
		return 0, nil
	}
	ids := make([]string, 0, len(list)-keep)
	for _, m := range list[keep:] {
		ids = append(ids, m.ID)
	}
	if err := a.remote.DeleteBackups(ctx, ids); err != nil {
		return 0, a.fail(ctx, "prune", err)
	}
	a.log.Info("remote history pruned", zap.String("op", "prune"), zap.Int("deleted", len(ids)), zap.Int("kept", keep))
	return len(ids), nil
}

// RunAutoSync uploads every interval until ctx is done. Failures are logged
// and otherwise ignored; the next tick simply tries again.
func (a *Adapter) RunAutoSync(ctx context.Context, interval time.Duration) {
	if a.remote == nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.Upload(ctx); err != nil {
				a.log.Debug("auto sync failed", zap.Error(err))
			}
		}
	}
}

// fail records the error in the sync state and wraps it as a connectivity error.
func (a *Adapter) fail(ctx context.Context, op string, err error) error {
	now := a.store.Now()
	a.saveState(ctx, func(s *State) {
		s.LastError = err.Error()
		s.LastErrorAt = &now
	})
	a.log.Warn("remote sync failed", zap.String("op", op), zap.String("driver", a.driver), zap.Error(err))
	return attendance.ErrConnectivity(op+" failed", err)
}

func (a *Adapter) saveState(ctx context.Context, fn func(*State)) {
	var st State
	if err := a.store.ReadJSON(ctx, attendance.KeySync, &st); err != nil {
		a.log.Warn("sync state unreadable", zap.Error(err))
	}
	fn(&st)
	if err := a.store.WriteJSON(ctx, attendance.KeySync, st); err != nil {
		a.log.Warn("sync state not saved", zap.Error(err))
	}
}

func errNotConfigured() error {
	return attendance.ErrConnectivity("remote sync is not configured", nil)
}
