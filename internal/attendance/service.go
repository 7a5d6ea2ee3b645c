package attendance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ===== Service =====

type Service struct {
	store     *Store
	policy    Policy
	retention int
	log       *zap.Logger

	sweepMu  sync.Mutex
	sweptDay string // local day of the last retention sweep
}

func NewService(store *Store, policy Policy, retentionDays int, log *zap.Logger) *Service {
	if policy.Location == nil {
		policy.Location = store.Location()
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, policy: policy, retention: retentionDays, log: log}
}

func (s *Service) Store() *Store      { return s.store }
func (s *Service) Policy() Policy     { return s.policy }
func (s *Service) RetentionDays() int { return s.retention }

// snapshot runs the retention sweep before the first stats query of each
// local day, then returns the current collection.
func (s *Service) snapshot(ctx context.Context) ([]Record, error) {
	day := s.store.DateKey(s.store.Now())
	s.sweepMu.Lock()
	if day != s.sweptDay {
		if _, err := s.store.EvictOlderThan(ctx, s.retention); err != nil {
			s.log.Warn("retention sweep failed", zap.Error(err))
		} else {
			s.sweptDay = day
		}
	}
	s.sweepMu.Unlock()
	return s.store.GetAll(ctx)
}

// POST /attendance
func (s *Service) Mark(ctx context.Context, in MarkRequest) (Record, error) {
	role, ok := ParseRole(in.Role)
	if !ok {
		return Record{}, ErrValidation("invalid role: " + in.Role)
	}
	return s.store.Mark(ctx, in.PrefectNumber, role, in.Timestamp)
}

// POST /attendance/bulk
func (s *Service) MarkBulk(ctx context.Context, in BulkRequest) (BulkResult, error) {
	if len(in.Entries) == 0 {
		return BulkResult{}, ErrValidation("entries is empty")
	}
	return s.store.AppendBulk(ctx, in.Entries)
}

// GET /attendance
func (s *Service) List(ctx context.Context, q ListQuery) (ListResponse, error) {
	var (
		recs []Record
		err  error
	)
	if q.PrefectNumber != "" {
		recs, err = s.store.Search(ctx, q.PrefectNumber)
	} else {
		recs, err = s.store.GetAll(ctx)
	}
	if err != nil {
		return ListResponse{}, err
	}
	if q.Date != "" {
		filtered := recs[:0:0]
		for _, r := range recs {
			if r.Date == q.Date {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	return ListResponse{Items: s.withStatus(recs), Total: len(recs)}, nil
}

// DELETE /attendance
func (s *Service) Clear(ctx context.Context) error { return s.store.Clear(ctx) }

// POST /attendance/cleanup
func (s *Service) Cleanup(ctx context.Context, days int) (CleanupResponse, error) {
	if days <= 0 {
		days = s.retention
	}
	n, err := s.store.EvictOlderThan(ctx, days)
	if err != nil {
		return CleanupResponse{}, err
	}
	return CleanupResponse{Removed: n, RetentionDays: days}, nil
}

// GET /stats/daily
func (s *Service) DailyStats(ctx context.Context, date string) (DailySummary, error) {
	recs, err := s.snapshot(ctx)
	if err != nil {
		return DailySummary{}, err
	}
	if date == "" || date == "today" {
		date = s.store.DateKey(s.store.Now())
	}
	return DailyStats(recs, date, s.policy), nil
}

// GET /stats/prefects/:prefect_number
func (s *Service) PrefectStats(ctx context.Context, prefectNumber string, recent int) (PrefectSummary, error) {
	if prefectNumber == "" {
		return PrefectSummary{}, ErrValidation("prefect number is required")
	}
	recs, err := s.snapshot(ctx)
	if err != nil {
		return PrefectSummary{}, err
	}
	return PrefectStats(recs, prefectNumber, s.policy, recent), nil
}

// GET /stats/roles?range=
func (s *Service) RoleDistribution(ctx context.Context, rangeName string) ([]RoleCount, error) {
	recs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if rangeName != "" {
		rg, ok := ParseRange(rangeName)
		if !ok {
			return nil, ErrValidation("unknown range: " + rangeName)
		}
		now := s.store.Now()
		recs = Within(recs, now.Add(-rg.Span()), now)
	}
	return RoleDistribution(recs, s.policy), nil
}

// GET /stats/timeseries?range=
func (s *Service) TimeSeries(ctx context.Context, rangeName string) (TimeSeriesResponse, error) {
	if rangeName == "" {
		rangeName = "7d"
	}
	rg, ok := ParseRange(rangeName)
	if !ok {
		return TimeSeriesResponse{}, ErrValidation("unknown range: " + rangeName)
	}
	recs, err := s.snapshot(ctx)
	if err != nil {
		return TimeSeriesResponse{}, err
	}
	return TimeSeriesResponse{Range: rg.Name, Buckets: TimeSeries(recs, rg, s.store.Now(), s.policy)}, nil
}

// Today is the dashboard summary for the current local day.
func (s *Service) Today(ctx context.Context) (DailySummary, error) {
	return s.DailyStats(ctx, "")
}

func (s *Service) withStatus(recs []Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordResponse{
			Record:    r,
			Status:    s.policy.Status(r.Timestamp),
			LocalTime: r.Timestamp.In(s.policy.loc()).Format(time.TimeOnly),
		})
	}
	return out
}
