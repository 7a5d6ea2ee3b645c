package remotesync

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RESTRemote talks to a PostgREST-compatible endpoint (Supabase and friends)
// exposing the attendance_records and attendance_backups tables.
// synced_at is left to the database: give the column a default of now() and an
// update trigger so re-uploads refresh it.
type RESTRemote struct {
	http *resty.Client
	log  *zap.Logger
}

// NewRESTRemote builds a client for baseURL (for Supabase: https://<ref>.supabase.co/rest/v1).
func NewRESTRemote(baseURL, apiKey string, log *zap.Logger) *RESTRemote {
	if log == nil {
		log = zap.NewNop()
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	return &RESTRemote{http: c, log: log}
}

func (r *RESTRemote) Close() error { return nil }

func (r *RESTRemote) Ping(ctx context.Context) error {
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{"select": "local_id", "limit": "1"}).
		Get("/attendance_records")
	return r.check(resp, err, "ping")
}

func (r *RESTRemote) UpsertRecords(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	body := make([]Row, len(rows))
	for i, row := range rows {
		row.SyncedAt = nil
		body[i] = row
	}
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParam("on_conflict", "local_id,device_id").
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetBody(body).
		Post("/attendance_records")
	return r.check(resp, err, "upsert records")
}

func (r *RESTRemote) FetchRecords(ctx context.Context, deviceID string) ([]Row, error) {
	out := []Row{}
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"select":    "local_id,device_id,prefect_number,role,recorded_at,date_key,synced_at",
			"device_id": "eq." + deviceID,
			"order":     "recorded_at.asc",
		}).
		SetResult(&out).
		Get("/attendance_records")
	if err := r.check(resp, err, "fetch records"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RESTRemote) CountRecords(ctx context.Context, deviceID string) (int, error) {
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{"select": "local_id", "device_id": "eq." + deviceID, "limit": "1"}).
		SetHeader("Prefer", "count=exact").
		Get("/attendance_records")
	if err := r.check(resp, err, "count records"); err != nil {
		return 0, err
	}
	// Content-Range: 0-0/42 or */0
	cr := resp.Header().Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return 0, fmt.Errorf("count records: missing Content-Range")
	}
	n, err := strconv.Atoi(cr[i+1:])
	if err != nil {
		return 0, fmt.Errorf("count records: bad Content-Range %q", cr)
	}
	return n, nil
}

func (r *RESTRemote) InsertBackup(ctx context.Context, m BackupMeta) error {
	resp, err := r.http.R().SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(m).
		Post("/attendance_backups")
	if err == nil && resp.StatusCode() == http.StatusConflict {
		return nil
	}
	return r.check(resp, err, "insert backup")
}

func (r *RESTRemote) ListBackups(ctx context.Context, deviceID string) ([]BackupMeta, error) {
	out := []BackupMeta{}
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"device_id": "eq." + deviceID,
			"order":     "created_at.desc,id.desc",
		}).
		SetResult(&out).
		Get("/attendance_backups")
	if err := r.check(resp, err, "list backups"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RESTRemote) DeleteBackups(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	resp, err := r.http.R().SetContext(ctx).
		SetQueryParam("id", "in.("+strings.Join(ids, ",")+")").
		Delete("/attendance_backups")
	return r.check(resp, err, "delete backups")
}

func (r *RESTRemote) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		r.log.Debug("remote call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		r.log.Debug("remote call rejected", zap.String("op", op), zap.Int("status_code", resp.StatusCode()))
		return fmt.Errorf("%s: %s %s", op, resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	return nil
}
