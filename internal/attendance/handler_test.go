package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, now *time.Time) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newTestStore(t, nil, now)
	svc := NewService(store, Policy{Location: time.UTC, LateAfter: DefaultLateAfter}, 14, nil)
	r := gin.New()
	RegisterRoutes(r, svc)
	return r, svc
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_MarkAndList(t *testing.T) {
	now := testNow
	r, _ := newTestRouter(t, &now)

	w := doJSON(r, http.MethodPost, "/attendance", MarkRequest{PrefectNumber: "12", Role: "Senior Prefect"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, RoleSenior, rec.Role)

	w = doJSON(r, http.MethodGet, "/attendance?prefect_number=12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, StatusOnTime, list.Items[0].Status)
	assert.Equal(t, "06:45:00", list.Items[0].LocalTime)
}

func TestHandler_MarkValidation(t *testing.T) {
	now := testNow
	r, _ := newTestRouter(t, &now)

	w := doJSON(r, http.MethodPost, "/attendance", map[string]string{"prefectNumber": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/attendance", MarkRequest{PrefectNumber: "1", Role: "Captain"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeValidation, body.Error.Code)
}

func TestHandler_BulkAndStats(t *testing.T) {
	now := testNow
	r, _ := newTestRouter(t, &now)

	w := doJSON(r, http.MethodPost, "/attendance/bulk", BulkRequest{Entries: []BulkEntry{
		{PrefectNumber: "64", Role: "Sub"},
		{PrefectNumber: "64", Role: "Sub"},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	var res BulkResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Success, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "duplicate entry in batch", res.Errors[0].Reason)

	w = doJSON(r, http.MethodGet, "/stats/daily", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var daily DailySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &daily))
	assert.Equal(t, "3/14/2025", daily.Date)
	assert.Equal(t, 1, daily.Total)

	w = doJSON(r, http.MethodGet, "/stats/prefects/64", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ps PrefectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ps))
	assert.Equal(t, 100.0, ps.AttendanceRate)

	w = doJSON(r, http.MethodGet, "/stats/timeseries?range=30m", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ts TimeSeriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ts))
	assert.Len(t, ts.Buckets, 30)

	w = doJSON(r, http.MethodGet, "/stats/timeseries?range=1y", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ClearNeedsConfirmation(t *testing.T) {
	now := testNow
	r, svc := newTestRouter(t, &now)
	_, err := svc.Store().Mark(context.Background(), "1", RoleHead, nil)
	require.NoError(t, err)

	w := doJSON(r, http.MethodDelete, "/attendance", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodDelete, "/attendance?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	all, err := svc.Store().GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_CleanupRunsOncePerDay(t *testing.T) {
	now := testNow
	_, svc := newTestRouter(t, &now)
	old := testNow.Add(-30 * 24 * time.Hour)
	_, err := svc.Store().Mark(context.Background(), "1", RoleHead, &old)
	require.NoError(t, err)

	_, err = svc.Today(context.Background())
	require.NoError(t, err)
	all, _ := svc.Store().GetAll(context.Background())
	assert.Empty(t, all)

	// later old records survive until the next day or an explicit cleanup
	_, err = svc.Store().Mark(context.Background(), "2", RoleHead, &old)
	require.NoError(t, err)
	_, err = svc.Today(context.Background())
	require.NoError(t, err)
	all, _ = svc.Store().GetAll(context.Background())
	assert.Len(t, all, 1)

	res, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
}

func TestService_CleanupFollowsTheClock(t *testing.T) {
	now := testNow
	_, svc := newTestRouter(t, &now)
	_, err := svc.Store().Mark(context.Background(), "9", RoleSub, nil)
	require.NoError(t, err)

	sum, err := svc.PrefectStats(context.Background(), "9", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalDays)

	now = now.Add(30 * 24 * time.Hour)
	sum, err = svc.PrefectStats(context.Background(), "9", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalDays)

	m, err := svc.Store().Meta(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m.LastCleanup)
	assert.True(t, m.LastCleanup.Equal(now))
}
