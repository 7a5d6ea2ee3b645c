package report

import (
	"bytes"
	"context"
	"io"
	"sort"

	"go.uber.org/zap"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/csvcodec"
)

// CSV export flavours.
const (
	FormatReport     = "report"
	FormatTimestamps = "timestamps"
)

// Import kinds.
const (
	KindBulk    = "bulk"
	KindRecords = "records"
)

type Service struct {
	store  *attendance.Store
	policy attendance.Policy
	log    *zap.Logger
}

func NewService(store *attendance.Store, policy attendance.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, policy: policy, log: log}
}

// ===== export =====

// ExportCSV renders the whole collection. It returns the suggested file name.
func (s *Service) ExportCSV(ctx context.Context, format string, bom bool) ([]byte, string, error) {
	recs, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, "", err
	}
	opts := csvcodec.Options{Policy: s.policy, BOM: bom}

	var buf bytes.Buffer
	switch format {
	case "", FormatReport:
		err = csvcodec.EncodeReport(&buf, recs, opts)
		format = FormatReport
	case FormatTimestamps:
		err = csvcodec.EncodeTimestamps(&buf, recs, opts)
		format = FormatTimestamps
	default:
		return nil, "", attendance.ErrValidation("unknown format: " + format)
	}
	if err != nil {
		return nil, "", attendance.ErrInternal("encode csv", err)
	}
	s.log.Info("csv exported", zap.String("op", "exportCSV"), zap.String("format", format), zap.Int("records", len(recs)))
	return buf.Bytes(), s.fileName(format, ".csv"), nil
}

func (s *Service) ExportXLSX(ctx context.Context) ([]byte, string, error) {
	recs, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, "", err
	}
	b, err := xlsxBytes(recs, s.policy)
	if err != nil {
		return nil, "", attendance.ErrInternal("encode xlsx", err)
	}
	s.log.Info("xlsx exported", zap.String("op", "exportXLSX"), zap.Int("records", len(recs)))
	return b, s.fileName("report", ".xlsx"), nil
}

func (s *Service) fileName(kind, ext string) string {
	return "prefect-attendance-" + kind + "-" + s.store.Now().In(s.store.Location()).Format("2006-01-02") + ext
}

// ===== import =====

// SkippedLine explains why one input line was not imported.
type SkippedLine struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Kind     string                 `json:"kind"`
	Imported int                    `json:"imported"`
	Skipped  []SkippedLine          `json:"skipped"`
	Bulk     *attendance.BulkResult `json:"bulk,omitempty"`
}

// ImportBulk reads "prefect number,role" lines and marks each one now.
func (s *Service) ImportBulk(ctx context.Context, r io.Reader) (ImportResult, error) {
	dec, err := csvcodec.DecodeBulk(r)
	if err != nil {
		return ImportResult{}, attendance.ErrValidation("file is unreadable")
	}
	return s.applyBulk(ctx, dec.Accepted(), skippedLines(dec.Lines))
}

// ImportBulkXLSX is ImportBulk for an uploaded workbook.
func (s *Service) ImportBulkXLSX(ctx context.Context, r io.Reader) (ImportResult, error) {
	entries, skipped, err := DecodeBulkXLSX(r)
	if err != nil {
		return ImportResult{}, err
	}
	lines := make([]SkippedLine, 0, len(skipped))
	for n, reason := range skipped {
		lines = append(lines, SkippedLine{Line: n, Reason: reason})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	return s.applyBulk(ctx, entries, lines)
}

func (s *Service) applyBulk(ctx context.Context, entries []attendance.BulkEntry, skipped []SkippedLine) (ImportResult, error) {
	if len(entries) == 0 {
		return ImportResult{}, attendance.ErrValidation("no valid rows")
	}
	res, err := s.store.AppendBulk(ctx, entries)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Kind: KindBulk, Imported: len(res.Success), Skipped: skipped, Bulk: &res}, nil
}

// ImportRecords reads a timestamp export back. With replace the file becomes
// the whole collection; otherwise its records are appended.
func (s *Service) ImportRecords(ctx context.Context, r io.Reader, replace bool) (ImportResult, error) {
	dec, err := csvcodec.DecodeRecords(r)
	if err != nil {
		return ImportResult{}, attendance.ErrValidation("file is unreadable")
	}
	rows := dec.Accepted()
	if len(rows) == 0 {
		return ImportResult{}, attendance.ErrValidation("no valid rows")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := s.store.NewRecord(row.PrefectNumber, row.Role, row.Timestamp)
		if err != nil {
			return ImportResult{}, err
		}
		recs = append(recs, rec)
	}
	n, err := s.store.Import(ctx, recs, replace)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Kind: KindRecords, Imported: n, Skipped: skippedLines(dec.Lines)}, nil
}

func skippedLines[T any](lines []csvcodec.Line[T]) []SkippedLine {
	out := []SkippedLine{}
	for _, l := range lines {
		if !l.OK() {
			out = append(out, SkippedLine{Line: l.Number, Reason: l.Reason})
		}
	}
	return out
}
