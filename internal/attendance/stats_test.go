package attendance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 3, 14, h, m, s, 0, time.UTC)
}

func rec(n string, role Role, ts time.Time) Record {
	return Record{ID: n + ts.Format(time.RFC3339), PrefectNumber: n, Role: role, Timestamp: ts, Date: ts.Format(DefaultDateLayout)}
}

func TestPolicy_LatenessBoundary(t *testing.T) {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	cases := []struct {
		ts   time.Time
		late bool
	}{
		{at(6, 59, 59), false},
		{at(7, 0, 0), false},
		{at(7, 0, 1), true},
		{at(7, 1, 0), true},
		{at(8, 0, 0), true},
		{at(0, 0, 0), false},
		{at(23, 59, 59), true},
	}
	for _, tc := range cases {
		t.Run(tc.ts.Format(time.TimeOnly), func(t *testing.T) {
			assert.Equal(t, tc.late, p.IsLate(tc.ts))
		})
	}
}

func TestPolicy_UsesLocalTime(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	p := Policy{Location: tokyo, LateAfter: DefaultLateAfter}
	// 22:30 UTC is 07:30 the next morning in Tokyo
	ts := time.Date(2025, 3, 13, 22, 30, 0, 0, time.UTC)
	assert.True(t, p.IsLate(ts))
	assert.Equal(t, StatusLate, p.Status(ts))
	assert.Equal(t, 7*60+30, p.MinutesSinceMidnight(ts))
}

func TestDailyStats(t *testing.T) {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	recs := []Record{
		rec("1", RoleHead, at(6, 50, 0)),
		rec("2", RoleSub, at(7, 5, 0)),
		rec("3", RoleSub, at(6, 30, 0)),
		rec("4", RoleSub, time.Date(2025, 3, 13, 6, 0, 0, 0, time.UTC)),
	}

	s := DailyStats(recs, "3/14/2025", p)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.OnTime)
	assert.Equal(t, 1, s.Late)
	assert.Equal(t, []RoleCount{
		{Role: RoleHead, Total: 1, OnTime: 1},
		{Role: RoleSub, Total: 2, OnTime: 1, Late: 1},
	}, s.ByRole)

	empty := DailyStats(recs, "1/1/2020", p)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.ByRole)
}

func TestPrefectStats_Rate(t *testing.T) {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	var recs []Record
	for i := 0; i < 10; i++ {
		day := time.Date(2025, 3, 1+i, 6, 30, 0, 0, time.UTC)
		if i >= 7 {
			day = day.Add(time.Hour)
		}
		recs = append(recs, rec("42", RoleSenior, day))
	}
	recs = append(recs, rec("43", RoleSenior, at(6, 0, 0)))

	s := PrefectStats(recs, "42", p, 3)
	assert.Equal(t, 10, s.TotalDays)
	assert.Equal(t, 7, s.OnTimeDays)
	assert.Equal(t, 3, s.LateDays)
	assert.Equal(t, 70.0, s.AttendanceRate)
	require.Len(t, s.Recent, 3)
	assert.Equal(t, 10, s.Recent[0].Timestamp.Day())
	assert.Equal(t, []RoleCount{{Role: RoleSenior, Total: 10, OnTime: 7, Late: 3}}, s.ByRole)

	none := PrefectStats(recs, "nobody", p, 0)
	assert.Zero(t, none.TotalDays)
	assert.Equal(t, 0.0, none.AttendanceRate)
	assert.Empty(t, none.Recent)
}

func TestRoleDistribution_AllTiers(t *testing.T) {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	dist := RoleDistribution([]Record{rec("1", RoleJunior, at(7, 30, 0))}, p)
	require.Len(t, dist, len(Roles))
	assert.Equal(t, RoleHead, dist[0].Role)
	assert.Equal(t, RoleCount{Role: RoleJunior, Total: 1, Late: 1}, dist[RoleJunior.Rank()])
}

func TestTimeSeries_Buckets(t *testing.T) {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	now := at(12, 0, 0)
	rg, ok := ParseRange("24h")
	require.True(t, ok)

	recs := []Record{
		rec("1", RoleSub, at(6, 30, 0)),
		rec("2", RoleSub, at(6, 50, 0)),
		rec("3", RoleSub, at(7, 10, 0)),
		rec("4", RoleSub, now),
		// outside the span: exactly at its start, in the future, far past
		rec("5", RoleSub, now.Add(-24*time.Hour)),
		rec("6", RoleSub, now.Add(time.Minute)),
		rec("7", RoleSub, time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)),
	}
	buckets := TimeSeries(recs, rg, now, p)
	require.Len(t, buckets, 24)
	assert.True(t, buckets[0].Start.Equal(now.Add(-24*time.Hour)))
	assert.True(t, buckets[23].End.Equal(now))

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	assert.Equal(t, 4, total)

	// (06:00, 07:00] is bucket 18 when the span starts at 12:00 the day before
	six := buckets[18]
	assert.True(t, six.Start.Equal(at(6, 0, 0)))
	assert.Equal(t, 2, six.Total)
	assert.Equal(t, 2, six.OnTime)
	assert.Equal(t, float64(6*60+40), six.AvgMinutes)

	seven := buckets[19]
	assert.Equal(t, 1, seven.Late)
	assert.Equal(t, 1, buckets[23].Total)
}

func TestParseRange(t *testing.T) {
	for _, r := range Ranges {
		got, ok := ParseRange(r.Name)
		assert.True(t, ok, r.Name)
		assert.Equal(t, r, got)
	}
	_, ok := ParseRange("1y")
	assert.False(t, ok)

	rg, _ := ParseRange("12w")
	assert.Equal(t, 84*24*time.Hour, rg.Span())
}

func ExamplePolicy_Status() {
	p := Policy{Location: time.UTC, LateAfter: DefaultLateAfter}
	fmt.Println(p.Status(at(7, 0, 0)), "/", p.Status(at(7, 0, 1)))
	// Output: On Time / Late
}
