package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/backup"
	"prefect-attendance/internal/platform/db"
	"prefect-attendance/internal/platform/kv"
)

type seqIDs struct{ n int }

func (g *seqIDs) New(time.Time) (string, error) {
	g.n++
	return fmt.Sprintf("rec-%04d", g.n), nil
}

var t0 = time.Date(2025, 3, 14, 6, 45, 0, 0, time.UTC)

func newStore(t *testing.T, now *time.Time) *attendance.Store {
	t.Helper()
	return attendance.NewStore(kv.NewMemory(), attendance.Options{
		Location: time.UTC,
		Clock:    attendance.ClockFunc(func() time.Time { return *now }),
		IDGen:    &seqIDs{},
	})
}

func newSQLite(t *testing.T) *SQLRemote {
	t.Helper()
	r, err := OpenSQLRemote(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func mark(t *testing.T, s *attendance.Store, n string, role attendance.Role, at time.Time) {
	t.Helper()
	_, err := s.Mark(context.Background(), n, role, &at)
	require.NoError(t, err)
}

// downRemote fails every call.
type downRemote struct{}

var errDown = errors.New("dial tcp: connection refused")

func (downRemote) Ping(context.Context) error                          { return errDown }
func (downRemote) UpsertRecords(context.Context, []Row) error          { return errDown }
func (downRemote) FetchRecords(context.Context, string) ([]Row, error) { return nil, errDown }
func (downRemote) CountRecords(context.Context, string) (int, error)   { return 0, errDown }
func (downRemote) InsertBackup(context.Context, BackupMeta) error      { return errDown }
func (downRemote) DeleteBackups(context.Context, []string) error       { return errDown }
func (downRemote) Close() error                                        { return nil }
func (downRemote) ListBackups(context.Context, string) ([]BackupMeta, error) {
	return nil, errDown
}

func TestAdapter_DeviceIDIsStable(t *testing.T) {
	now := t0
	a := NewAdapter(nil, "", newStore(t, &now), backup.SystemInfo{}, nil)

	id, err := a.DeviceID(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^device_[0-9a-f-]{36}$`, id)

	again, err := a.DeviceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestAdapter_UploadIsIdempotent(t *testing.T) {
	now := t0
	store := newStore(t, &now)
	mark(t, store, "12", attendance.RoleHead, t0)
	remote := newSQLite(t)
	a := NewAdapter(remote, db.DriverSQLite, store, backup.SystemInfo{App: "prefect-attendance"}, nil)

	first, err := a.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Uploaded)
	assert.Equal(t, 1, first.RemoteCount)

	now = t0.Add(time.Minute)
	second, err := a.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.RemoteCount)
	assert.NotEqual(t, first.Backup.ID, second.Backup.ID)

	recs, err := a.Download(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rec-0001", recs[0].ID)
	assert.Equal(t, "12", recs[0].PrefectNumber)
	assert.True(t, t0.Equal(recs[0].Timestamp))

	rows, err := remote.FetchRecords(context.Background(), first.DeviceID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0].SyncedAt)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.True(t, st.Connected)
	assert.Equal(t, 1, st.RemoteCount)
	require.NotNil(t, st.LastSync)
	assert.True(t, now.Equal(*st.LastSync))
}

func TestAdapter_DownloadOnlyReturnsOwnDevice(t *testing.T) {
	now := t0
	remote := newSQLite(t)
	require.NoError(t, remote.UpsertRecords(context.Background(), []Row{
		{LocalID: "x1", DeviceID: "device_other", PrefectNumber: "7", Role: "Head", RecordedAt: t0, DateKey: "3/14/2025"},
	}))

	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleSub, t0)
	a := NewAdapter(remote, db.DriverSQLite, store, backup.SystemInfo{}, nil)
	_, err := a.Upload(context.Background())
	require.NoError(t, err)

	recs, err := a.Download(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].PrefectNumber)
}

func TestAdapter_ApplyDownloadReplacesLocal(t *testing.T) {
	now := t0
	remote := newSQLite(t)
	src := newStore(t, &now)
	mark(t, src, "1", attendance.RoleHead, t0)
	mark(t, src, "2", attendance.RoleHead, t0.Add(time.Minute))
	a := NewAdapter(remote, db.DriverSQLite, src, backup.SystemInfo{}, nil)
	_, err := a.Upload(context.Background())
	require.NoError(t, err)

	require.NoError(t, src.Clear(context.Background()))
	mark(t, src, "99", attendance.RoleSub, t0)

	recs, err := a.Download(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.ApplyDownload(context.Background(), recs))

	all, err := src.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].PrefectNumber)
	assert.Equal(t, "2", all[1].PrefectNumber)
}

func TestAdapter_PruneKeepsNewest(t *testing.T) {
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)
	a := NewAdapter(newSQLite(t), db.DriverSQLite, store, backup.SystemInfo{}, nil)

	var last UploadResult
	for i := 0; i < 5; i++ {
		now = t0.Add(time.Duration(i) * time.Hour)
		res, err := a.Upload(context.Background())
		require.NoError(t, err)
		last = res
	}

	n, err := a.PruneRemoteHistory(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hist, err := a.History(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, last.Backup.ID, hist[0].ID)

	n, err = a.PruneRemoteHistory(context.Background(), 2)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = a.PruneRemoteHistory(context.Background(), -1)
	assert.True(t, attendance.IsCode(err, attendance.CodeValidation))
}

func TestAdapter_FailuresAreConnectivityAndKeepLocalData(t *testing.T) {
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)
	a := NewAdapter(downRemote{}, "rest", store, backup.SystemInfo{}, nil)

	assert.False(t, a.CheckConnection(context.Background()))

	_, err := a.Upload(context.Background())
	require.Error(t, err)
	assert.True(t, attendance.IsCode(err, attendance.CodeConnectivity))
	assert.ErrorIs(t, err, errDown)

	_, err = a.Download(context.Background())
	assert.True(t, attendance.IsCode(err, attendance.CodeConnectivity))

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Contains(t, st.LastError, "connection refused")
	assert.Nil(t, st.LastSync)
}

func TestAdapter_NotConfigured(t *testing.T) {
	now := t0
	a := NewAdapter(nil, "", newStore(t, &now), backup.SystemInfo{}, nil)
	assert.False(t, a.Configured())
	assert.False(t, a.CheckConnection(context.Background()))
	_, err := a.Upload(context.Background())
	assert.True(t, attendance.IsCode(err, attendance.CodeConnectivity))

	// returns straight away
	a.RunAutoSync(context.Background(), time.Millisecond)
}

func TestRunAutoSync_UploadsUntilCancelled(t *testing.T) {
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)
	remote := newSQLite(t)
	a := NewAdapter(remote, db.DriverSQLite, store, backup.SystemInfo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunAutoSync(ctx, 10*time.Millisecond)
		close(done)
	}()

	device, err := a.DeviceID(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		n, err := remote.CountRecords(context.Background(), device)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auto sync did not stop")
	}
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
}

func TestRESTRemote_UpsertSendsConflictTarget(t *testing.T) {
	var (
		gotQuery  string
		gotPrefer string
		gotKey    string
		gotAuth   string
		gotRows   []Row
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/attendance_records":
			gotQuery = r.URL.Query().Get("on_conflict")
			gotPrefer = r.Header.Get("Prefer")
			gotKey = r.Header.Get("apikey")
			gotAuth = r.Header.Get("Authorization")
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &gotRows)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/attendance_records" && r.Header.Get("Prefer") == "count=exact":
			w.Header().Set("Content-Range", "0-0/42")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		case r.Method == http.MethodGet && r.URL.Path == "/attendance_records":
			assert.Equal(t, "eq.device_a", r.URL.Query().Get("device_id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"local_id":"r1","device_id":"device_a","prefect_number":"5","role":"Head","recorded_at":"2025-03-14T06:45:00Z","date_key":"3/14/2025","synced_at":"2025-03-14T07:00:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := NewRESTRemote(srv.URL, "anon-key", nil)
	synced := t0
	err := r.UpsertRecords(context.Background(), []Row{{LocalID: "r1", DeviceID: "device_a", PrefectNumber: "5", Role: "Head", RecordedAt: t0, DateKey: "3/14/2025", SyncedAt: &synced}})
	require.NoError(t, err)
	assert.Equal(t, "local_id,device_id", gotQuery)
	assert.Contains(t, gotPrefer, "resolution=merge-duplicates")
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "Bearer anon-key", gotAuth)
	require.Len(t, gotRows, 1)
	assert.Nil(t, gotRows[0].SyncedAt)

	n, err := r.CountRecords(context.Background(), "device_a")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	rows, err := r.FetchRecords(context.Background(), "device_a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rec, err := rows[0].toRecord()
	require.NoError(t, err)
	assert.Equal(t, attendance.RoleHead, rec.Role)
	require.NotNil(t, rows[0].SyncedAt)
}

func TestRESTRemote_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewRESTRemote(srv.URL, "k", nil).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "JWT expired")
}

func TestHandler_ApplyNeedsConfirmation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)
	a := NewAdapter(newSQLite(t), db.DriverSQLite, store, backup.SystemInfo{}, nil)
	r := gin.New()
	RegisterRoutes(r, a, 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/upload", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/download/apply", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/download/apply?confirm=true", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"restored":1}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Connected)
}

func TestHandler_UploadWithoutRemoteIsBadGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := t0
	r := gin.New()
	RegisterRoutes(r, NewAdapter(nil, "", newStore(t, &now), backup.SystemInfo{}, nil), 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/upload", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandler_PruneUsesConfiguredKeep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)
	a := NewAdapter(newSQLite(t), db.DriverSQLite, store, backup.SystemInfo{}, nil)
	for i := 0; i < 4; i++ {
		now = t0.Add(time.Duration(i) * time.Hour)
		_, err := a.Upload(context.Background())
		require.NoError(t, err)
	}
	r := gin.New()
	RegisterRoutes(r, a, 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/prune", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"deleted":3,"kept":1}`, w.Body.String())

	// an explicit keep still wins
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/prune", strings.NewReader(`{"keep":0}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"deleted":1,"kept":0}`, w.Body.String())
}

// ===== reconnecting remote =====

func TestReconnecting_RetriesOpenUntilItSucceeds(t *testing.T) {
	calls := 0
	r := NewReconnecting(func(ctx context.Context) (Remote, error) {
		calls++
		if calls < 3 {
			return nil, errDown
		}
		return newSQLite(t), nil
	})

	require.ErrorIs(t, r.Ping(context.Background()), errDown)
	_, err := r.CountRecords(context.Background(), "dev")
	require.ErrorIs(t, err, errDown)

	require.NoError(t, r.Ping(context.Background()))
	n, err := r.CountRecords(context.Background(), "dev")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, calls, "open stops once a connection is held")

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestAdapter_RemoteComesUpAfterStart(t *testing.T) {
	now := t0
	store := newStore(t, &now)
	mark(t, store, "1", attendance.RoleHead, t0)

	dir := filepath.Join(t.TempDir(), "later")
	remote := NewReconnecting(SQLDialer(db.DriverSQLite, filepath.Join(dir, "remote.db")))
	a := NewAdapter(remote, db.DriverSQLite, store, backup.SystemInfo{}, nil)
	t.Cleanup(func() { a.Close() })

	assert.True(t, a.Configured())
	assert.False(t, a.CheckConnection(context.Background()))
	_, err := a.Upload(context.Background())
	require.Error(t, err)
	assert.True(t, attendance.IsCode(err, attendance.CodeConnectivity))

	require.NoError(t, os.MkdirAll(dir, 0o755))

	assert.True(t, a.CheckConnection(context.Background()))
	res, err := a.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemoteCount)

	st, err := a.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.Empty(t, st.LastError)
}
