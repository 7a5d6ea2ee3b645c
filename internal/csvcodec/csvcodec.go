// Package csvcodec reads and writes the plain comma-separated files used for
// reports and bulk imports.
//
// Fields are joined with bare commas. Nothing is quoted or escaped, so a value
// that itself contains a comma produces a row with the wrong number of fields.
// Prefect numbers and role names never contain commas, which is what keeps the
// format usable; callers must not feed it free text.
package csvcodec

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"prefect-attendance/internal/attendance"
)

const (
	ReportHeader    = "Role,Prefect Number,Date,Time,Status"
	TimestampHeader = "Role,Prefect Number,Timestamp"
	BulkHeader      = "Prefect Number,Role"

	TimestampLayout = time.RFC3339Nano
	TimeLayout      = "15:04:05"
	commentPrefix   = "//"
)

type Options struct {
	Policy attendance.Policy
	// BOM prefixes the output with a UTF-8 byte order mark so spreadsheet
	// programs detect the encoding.
	BOM bool
}

// ===== encode =====

// EncodeReport writes the human-facing report with a derived on-time/late status.
func EncodeReport(w io.Writer, recs []attendance.Record, opts Options) error {
	return encode(w, opts.BOM, ReportHeader, len(recs), func(i int) []string {
		r := recs[i]
		return []string{
			string(r.Role),
			r.PrefectNumber,
			r.Date,
			r.Timestamp.In(location(opts.Policy)).Format(TimeLayout),
			opts.Policy.Status(r.Timestamp),
		}
	})
}

// EncodeTimestamps writes the lossless export read back by DecodeRecords.
func EncodeTimestamps(w io.Writer, recs []attendance.Record, opts Options) error {
	return encode(w, opts.BOM, TimestampHeader, len(recs), func(i int) []string {
		r := recs[i]
		return []string{string(r.Role), r.PrefectNumber, r.Timestamp.Format(TimestampLayout)}
	})
}

func encode(w io.Writer, bom bool, header string, n int, row func(int) []string) error {
	var tw *transform.Writer
	if bom {
		tw = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = tw
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(header)
	bw.WriteByte('\n')
	for i := 0; i < n; i++ {
		bw.WriteString(strings.Join(row(i), ","))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}

func location(p attendance.Policy) *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// ===== decode =====

// Line is the parse result of one data line: either Value is set or Reason
// says why the line was skipped.
type Line[T any] struct {
	Number int    `json:"line"`
	Value  T      `json:"value"`
	Reason string `json:"reason,omitempty"`
}

func (l Line[T]) OK() bool { return l.Reason == "" }

type Decoded[T any] struct {
	Lines []Line[T]
}

func (d Decoded[T]) Accepted() []T {
	out := make([]T, 0, len(d.Lines))
	for _, l := range d.Lines {
		if l.OK() {
			out = append(out, l.Value)
		}
	}
	return out
}

// Skipped counts lines that produced no value (comments included).
func (d Decoded[T]) Skipped() int { return len(d.Lines) - len(d.Accepted()) }

// TimestampRow is one line of a timestamp export.
type TimestampRow struct {
	Role          attendance.Role
	PrefectNumber string
	Timestamp     time.Time
}

// DecodeBulk reads "prefectNumber,role" lines.
func DecodeBulk(r io.Reader) (Decoded[attendance.BulkEntry], error) {
	return decode(r, 2, func(f []string) (attendance.BulkEntry, string) {
		role, ok := attendance.ParseRole(f[1])
		if !ok {
			return attendance.BulkEntry{}, "invalid role"
		}
		return attendance.BulkEntry{PrefectNumber: f[0], Role: string(role)}, ""
	})
}

// DecodeRecords reads "role,prefectNumber,timestamp" lines.
func DecodeRecords(r io.Reader) (Decoded[TimestampRow], error) {
	return decode(r, 3, func(f []string) (TimestampRow, string) {
		role, ok := attendance.ParseRole(f[0])
		if !ok {
			return TimestampRow{}, "invalid role"
		}
		ts, err := time.Parse(TimestampLayout, f[2])
		if err != nil {
			return TimestampRow{}, "invalid timestamp"
		}
		return TimestampRow{Role: role, PrefectNumber: f[1], Timestamp: ts}, ""
	})
}

// decode drops the header line and blank lines, then hands every line with at
// least n non-empty leading fields and no comment field to parse.
func decode[T any](r io.Reader, n int, parse func([]string) (T, string)) (Decoded[T], error) {
	// strips a UTF-8 BOM and transcodes UTF-16 files that carry one
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	raw, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return Decoded[T]{}, attendance.ErrValidation("unreadable csv: " + err.Error())
	}

	var out Decoded[T]
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	num := 0
	for sc.Scan() {
		num++
		if num == 1 {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		line := Line[T]{Number: num}
		switch reason := check(fields, n); {
		case reason != "":
			line.Reason = reason
		default:
			line.Value, line.Reason = parse(fields[:n])
		}
		out.Lines = append(out.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return Decoded[T]{}, attendance.ErrValidation("unreadable csv: " + err.Error())
	}
	return out, nil
}

func check(fields []string, n int) string {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if strings.HasPrefix(fields[i], commentPrefix) {
			return "comment"
		}
	}
	if len(fields) < n {
		return "missing fields"
	}
	for _, f := range fields[:n] {
		if f == "" {
			return "missing fields"
		}
	}
	return ""
}

// ===== template =====

var templateRows = [][2]string{
	{"101", "Head"},
	{"102", "Deputy"},
	{"215", "Senior Executive"},
	{"230", "Executive"},
	{"318", "Super Senior"},
	{"342", "Senior"},
	{"407", "Junior"},
	{"511", "Sub"},
	{"620", "Apprentice"},
}

// Template is a starter file for bulk imports.
func Template() []byte {
	var b strings.Builder
	b.WriteString(BulkHeader + "\n")
	b.WriteString("// One prefect per line. Lines with a field starting with // are ignored.\n")
	names := make([]string, len(attendance.Roles))
	for i, r := range attendance.Roles {
		names[i] = string(r)
	}
	b.WriteString("// Roles: " + strings.Join(names, " | ") + "\n")
	for _, r := range templateRows {
		b.WriteString(r[0] + "," + r[1] + "\n")
	}
	return []byte(b.String())
}
