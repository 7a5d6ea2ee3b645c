package attendance

import (
	"sort"
	"time"
)

const (
	StatusOnTime = "On Time"
	StatusLate   = "Late"

	DefaultLateAfter  = 7 * time.Hour
	DefaultRecentSize = 10
)

// Policy carries everything the stats functions need besides the records.
type Policy struct {
	Location  *time.Location
	LateAfter time.Duration // offset from local midnight
}

func DefaultPolicy() Policy {
	return Policy{Location: time.Local, LateAfter: DefaultLateAfter}
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// timeOfDay is the offset of ts from its local midnight, to the second.
func (p Policy) timeOfDay(ts time.Time) time.Duration {
	l := ts.In(p.loc())
	return time.Duration(l.Hour())*time.Hour + time.Duration(l.Minute())*time.Minute + time.Duration(l.Second())*time.Second
}

// IsLate: strictly after the cutoff. With the default cutoff 07:00:00 is on
// time and 07:00:01 is late.
func (p Policy) IsLate(ts time.Time) bool {
	return p.timeOfDay(ts) > p.LateAfter
}

func (p Policy) Status(ts time.Time) string {
	if p.IsLate(ts) {
		return StatusLate
	}
	return StatusOnTime
}

func (p Policy) MinutesSinceMidnight(ts time.Time) int {
	l := ts.In(p.loc())
	return l.Hour()*60 + l.Minute()
}

// ===== aggregates =====

type RoleCount struct {
	Role   Role `json:"role"`
	Total  int  `json:"total"`
	OnTime int  `json:"onTime"`
	Late   int  `json:"late"`
}

type DailySummary struct {
	Date   string      `json:"date"`
	Total  int         `json:"total"`
	OnTime int         `json:"onTime"`
	Late   int         `json:"late"`
	ByRole []RoleCount `json:"byRole"`
}

type PrefectSummary struct {
	PrefectNumber  string      `json:"prefectNumber"`
	TotalDays      int         `json:"totalDays"`
	OnTimeDays     int         `json:"onTimeDays"`
	LateDays       int         `json:"lateDays"`
	AttendanceRate float64     `json:"attendanceRate"`
	ByRole         []RoleCount `json:"byRole"`
	Recent         []Record    `json:"recent"`
}

// roleTally keeps counts in seniority order.
type roleTally [9]RoleCount

func newRoleTally() *roleTally {
	var t roleTally
	for i, r := range Roles {
		t[i].Role = r
	}
	return &t
}

func (t *roleTally) add(r Role, late bool) {
	i := r.Rank()
	if i < 0 {
		return
	}
	t[i].Total++
	if late {
		t[i].Late++
	} else {
		t[i].OnTime++
	}
}

// nonZero drops tiers with no records.
func (t *roleTally) nonZero() []RoleCount {
	out := []RoleCount{}
	for _, c := range t {
		if c.Total > 0 {
			out = append(out, c)
		}
	}
	return out
}

// DailyStats summarises every record whose Date equals date.
func DailyStats(recs []Record, date string, p Policy) DailySummary {
	s := DailySummary{Date: date}
	t := newRoleTally()
	for _, r := range recs {
		if r.Date != date {
			continue
		}
		late := p.IsLate(r.Timestamp)
		s.Total++
		if late {
			s.Late++
		} else {
			s.OnTime++
		}
		t.add(r.Role, late)
	}
	s.ByRole = t.nonZero()
	return s
}

// PrefectStats summarises one individual. Each record counts as one day.
// recent caps the number of newest records returned (DefaultRecentSize if <= 0).
func PrefectStats(recs []Record, prefectNumber string, p Policy, recent int) PrefectSummary {
	if recent <= 0 {
		recent = DefaultRecentSize
	}
	s := PrefectSummary{PrefectNumber: prefectNumber}
	t := newRoleTally()
	mine := []Record{}
	for _, r := range recs {
		if r.PrefectNumber != prefectNumber {
			continue
		}
		mine = append(mine, r)
		late := p.IsLate(r.Timestamp)
		s.TotalDays++
		if late {
			s.LateDays++
		} else {
			s.OnTimeDays++
		}
		t.add(r.Role, late)
	}
	if s.TotalDays > 0 {
		s.AttendanceRate = float64(s.OnTimeDays) * 100 / float64(s.TotalDays)
	}
	s.ByRole = t.nonZero()

	sort.SliceStable(mine, func(i, j int) bool { return mine[i].Timestamp.After(mine[j].Timestamp) })
	if len(mine) > recent {
		mine = mine[:recent]
	}
	s.Recent = mine
	return s
}

// RoleDistribution counts records per tier; every tier is present, in
// seniority order.
func RoleDistribution(recs []Record, p Policy) []RoleCount {
	t := newRoleTally()
	for _, r := range recs {
		t.add(r.Role, p.IsLate(r.Timestamp))
	}
	return t[:]
}

// ===== time series =====

// Range is a fixed number of equal-width buckets ending at "now".
type Range struct {
	Name    string        `json:"name"`
	Buckets int           `json:"buckets"`
	Width   time.Duration `json:"width"`
}

func (r Range) Span() time.Duration { return time.Duration(r.Buckets) * r.Width }

var Ranges = []Range{
	{Name: "30m", Buckets: 30, Width: time.Minute},
	{Name: "24h", Buckets: 24, Width: time.Hour},
	{Name: "7d", Buckets: 7, Width: 24 * time.Hour},
	{Name: "30d", Buckets: 30, Width: 24 * time.Hour},
	{Name: "12w", Buckets: 12, Width: 7 * 24 * time.Hour},
}

func ParseRange(name string) (Range, bool) {
	for _, r := range Ranges {
		if r.Name == name {
			return r, true
		}
	}
	return Range{}, false
}

type Bucket struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Total      int       `json:"total"`
	OnTime     int       `json:"onTime"`
	Late       int       `json:"late"`
	AvgMinutes float64   `json:"avgMinutes"` // mean check-in minutes since midnight, 0 if empty
}

// Within keeps records with start < timestamp <= end.
func Within(recs []Record, start, end time.Time) []Record {
	out := []Record{}
	for _, r := range recs {
		if r.Timestamp.After(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out
}

// TimeSeries buckets recs into rg ending at now. Each bucket covers
// (Start, End]; records outside the whole span are left out of this view.
func TimeSeries(recs []Record, rg Range, now time.Time, p Policy) []Bucket {
	start := now.Add(-rg.Span())
	out := make([]Bucket, rg.Buckets)
	sums := make([]int, rg.Buckets)
	for i := range out {
		out[i].Start = start.Add(time.Duration(i) * rg.Width)
		out[i].End = out[i].Start.Add(rg.Width)
	}
	for _, r := range recs {
		d := r.Timestamp.Sub(start)
		if d <= 0 || r.Timestamp.After(now) {
			continue
		}
		i := int((d - 1) / rg.Width)
		b := &out[i]
		b.Total++
		if p.IsLate(r.Timestamp) {
			b.Late++
		} else {
			b.OnTime++
		}
		sums[i] += p.MinutesSinceMidnight(r.Timestamp)
	}
	for i := range out {
		if out[i].Total > 0 {
			out[i].AvgMinutes = float64(sums[i]) / float64(out[i].Total)
		}
	}
	return out
}
