package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prefect-attendance/internal/attendance"
)

func newTestRouter(t *testing.T) (*gin.Engine, *attendance.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := t0
	store := newStore(t, &now)
	seed(t, store, 3)
	svc := NewService(store, Config{Dir: filepath.Join(t.TempDir(), "b")}, nil)
	r := gin.New()
	RegisterRoutes(r, svc)
	return r, store
}

// upload posts raw as the "file" part alongside the given form fields.
func upload(t *testing.T, r http.Handler, path string, raw []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "backup")
	require.NoError(t, err)
	_, err = fw.Write(raw)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) attendance.Code {
	t.Helper()
	var body attendance.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error.Code
}

func TestHandler_ExportValidateRestore(t *testing.T) {
	cases := []struct {
		mode        Mode
		passphrase  string
		contentType string
	}{
		{ModePlain, "", "application/json"},
		{ModeXOR, "hunter2", "application/octet-stream"},
		{ModeSealed, "correct horse", "application/octet-stream"},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			r, store := newTestRouter(t)

			w := httptest.NewRecorder()
			body := `{"mode":"` + string(tc.mode) + `","passphrase":"` + tc.passphrase + `"}`
			req := httptest.NewRequest(http.MethodPost, "/backup/export", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tc.contentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), tc.mode.Ext())
			raw := w.Body.Bytes()
			assert.Equal(t, tc.mode, DetectMode(raw))

			w = upload(t, r, "/backup/validate", raw, map[string]string{"passphrase": tc.passphrase})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var info InspectResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
			assert.Equal(t, FormatVersion, info.Version)
			assert.Equal(t, 3, info.Records)

			require.NoError(t, store.Clear(context.Background()))
			w = upload(t, r, "/backup/restore", raw, map[string]string{"passphrase": tc.passphrase, "confirm": "true"})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, `{"restored":3}`, w.Body.String())

			all, err := store.GetAll(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestHandler_WrongPassphraseIsDecryptionError(t *testing.T) {
	for _, mode := range []Mode{ModeXOR, ModeSealed} {
		t.Run(string(mode), func(t *testing.T) {
			r, store := newTestRouter(t)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/backup/export",
				strings.NewReader(`{"mode":"`+string(mode)+`","passphrase":"right"}`))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			raw := w.Body.Bytes()

			w = upload(t, r, "/backup/validate", raw, map[string]string{"passphrase": "wrong"})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, attendance.CodeDecryption, errorCode(t, w))

			w = upload(t, r, "/backup/restore", raw, map[string]string{"passphrase": "wrong", "confirm": "true"})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, attendance.CodeDecryption, errorCode(t, w))

			all, err := store.GetAll(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, 3, "a rejected restore leaves records untouched")
		})
	}
}

func TestHandler_RestoreNeedsConfirmAndFile(t *testing.T) {
	r, _ := newTestRouter(t)

	w := upload(t, r, "/backup/restore", []byte("{}"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, attendance.CodeValidation, errorCode(t, w))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/backup/validate", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/backup/export", strings.NewReader(`{"mode":"rot13"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
