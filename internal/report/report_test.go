package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/platform/kv"
)

type seqIDs struct{ n int }

func (g *seqIDs) New(time.Time) (string, error) {
	g.n++
	return fmt.Sprintf("rec-%04d", g.n), nil
}

var t0 = time.Date(2025, 3, 14, 6, 45, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *attendance.Store) {
	t.Helper()
	store := attendance.NewStore(kv.NewMemory(), attendance.Options{
		Location: time.UTC,
		Clock:    attendance.ClockFunc(func() time.Time { return t0 }),
		IDGen:    &seqIDs{},
	})
	return NewService(store, attendance.Policy{Location: time.UTC, LateAfter: attendance.DefaultLateAfter}, nil), store
}

func mark(t *testing.T, s *attendance.Store, n string, role attendance.Role, at time.Time) {
	t.Helper()
	_, err := s.Mark(context.Background(), n, role, &at)
	require.NoError(t, err)
}

func TestExportXLSX_Sheets(t *testing.T) {
	svc, store := newService(t)
	mark(t, store, "1", attendance.RoleHead, t0)
	mark(t, store, "2", attendance.RoleSub, t0.Add(30*time.Minute))
	mark(t, store, "1", attendance.RoleHead, t0.Add(-24*time.Hour))

	b, name, err := svc.ExportXLSX(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prefect-attendance-report-2025-03-14.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetAttendance, SheetDaily, SheetRoles}, f.GetSheetList())

	rows, err := f.GetRows(SheetAttendance)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Role", "Prefect Number", "Date", "Time", "Status"}, rows[0])
	assert.Equal(t, []string{"Sub Prefect", "2", "3/14/2025", "07:15:00", "Late"}, rows[2])

	daily, err := f.GetRows(SheetDaily)
	require.NoError(t, err)
	require.Len(t, daily, 3)
	assert.Equal(t, []string{"3/14/2025", "2", "1", "1", "50"}, daily[1])
	assert.Equal(t, "3/13/2025", daily[2][0])

	roles, err := f.GetRows(SheetRoles)
	require.NoError(t, err)
	assert.Len(t, roles, len(attendance.Roles)+1)
	assert.Equal(t, []string{"Head Prefect", "2", "2", "0"}, roles[1])
}

func TestExportCSV_Formats(t *testing.T) {
	svc, store := newService(t)
	mark(t, store, "7", attendance.RoleJunior, t0)

	b, name, err := svc.ExportCSV(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, "prefect-attendance-report-2025-03-14.csv", name)
	assert.Equal(t, "Role,Prefect Number,Date,Time,Status\nJunior,7,3/14/2025,06:45:00,On Time\n", string(b))

	b, _, err = svc.ExportCSV(context.Background(), FormatTimestamps, true)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\xef\xbb\xbf")))

	_, _, err = svc.ExportCSV(context.Background(), "pdf", false)
	assert.True(t, attendance.IsCode(err, attendance.CodeValidation))
}

func TestImportRecords_RoundTripReplace(t *testing.T) {
	src, srcStore := newService(t)
	mark(t, srcStore, "1", attendance.RoleHead, t0)
	mark(t, srcStore, "2", attendance.RoleDeputy, t0.Add(time.Hour))
	b, _, err := src.ExportCSV(context.Background(), FormatTimestamps, true)
	require.NoError(t, err)

	dst, dstStore := newService(t)
	mark(t, dstStore, "99", attendance.RoleSub, t0)
	res, err := dst.ImportRecords(context.Background(), bytes.NewReader(append(b, "Head,,2025-01-01T00:00:00Z\n"...)), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "missing fields", res.Skipped[0].Reason)

	all, err := dstStore.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, attendance.RoleDeputy, all[1].Role)
	assert.True(t, t0.Add(time.Hour).Equal(all[1].Timestamp))
}

func TestImportBulk_NoValidRows(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ImportBulk(context.Background(), strings.NewReader("Prefect Number,Role\n1,Captain\n"))
	assert.True(t, attendance.IsCode(err, attendance.CodeValidation))
}

func TestImportBulkXLSX(t *testing.T) {
	svc, store := newService(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Prefect Number", "Role"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"10", "Senior Prefect"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"11", "Captain"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"12"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A5", &[]any{"10", "Senior"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := svc.ImportBulkXLSX(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.NotNil(t, res.Bulk)
	require.Len(t, res.Bulk.Errors, 1)
	assert.Equal(t, "duplicate entry in batch", res.Bulk.Errors[0].Reason)
	assert.Equal(t, []SkippedLine{{Line: 3, Reason: "invalid role"}, {Line: 4, Reason: "missing fields"}}, res.Skipped)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, attendance.RoleSenior, all[0].Role)
}

func upload(t *testing.T, r http.Handler, name string, body []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_TemplateImportExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, store := newService(t)
	r := gin.New()
	RegisterRoutes(r, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/import/template", nil))
	require.Equal(t, http.StatusOK, w.Code)
	tmpl := w.Body.Bytes()

	w = upload(t, r, "template.csv", tmpl, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res ImportResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, len(attendance.Roles), res.Imported)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(attendance.Roles))

	w = upload(t, r, "x.csv", tmpl, map[string]string{"kind": "nonsense"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
}
