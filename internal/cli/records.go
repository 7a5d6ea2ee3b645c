package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"prefect-attendance/internal/attendance"
)

func newMarkCommand(opts *RootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "mark <prefect-number> <role>",
		Short: "Mark one prefect present",
		Example: `  prefectctl mark 12 "Senior Executive"
  prefectctl mark 12 Head --at 2025-03-14T06:55:00+03:00`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			req := attendance.MarkRequest{PrefectNumber: args[0], Role: args[1]}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return out.Fail(attendance.ErrValidation("--at must be RFC 3339, e.g. 2025-03-14T06:55:00Z"))
				}
				req.Timestamp = &ts
			}

			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			rec, err := a.Attendance.Mark(cmd.Context(), req)
			if err != nil {
				return out.Fail(err)
			}
			p := a.Attendance.Policy()
			resp := attendance.RecordResponse{
				Record:    rec,
				Status:    p.Status(rec.Timestamp),
				LocalTime: rec.Timestamp.In(p.Location).Format("15:04:05"),
			}
			return out.Success(resp, func(w io.Writer) {
				fmt.Fprintf(w, "%s #%s marked at %s (%s)\n", rec.Role.LongName(), rec.PrefectNumber, resp.LocalTime, resp.Status)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "record time instead of now (RFC 3339)")
	return cmd
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var q attendance.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records with their on-time status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			res, err := a.Attendance.List(cmd.Context(), q)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(res, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tTIME\tNUMBER\tROLE\tSTATUS")
				for _, r := range res.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Date, r.LocalTime, r.PrefectNumber, r.Role, r.Status)
				}
				tw.Flush()
				fmt.Fprintf(w, "%d record(s)\n", res.Total)
			})
		},
	}
	cmd.Flags().StringVarP(&q.PrefectNumber, "prefect", "p", "", "only this prefect number")
	cmd.Flags().StringVarP(&q.Date, "date", "d", "", "only this day, as shown in the date column")
	return cmd
}

func newCleanupCommand(opts *RootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			res, err := a.Attendance.Cleanup(cmd.Context(), days)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "removed %d record(s) older than %d day(s)\n", res.Removed, res.RetentionDays)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default from config)")
	return cmd
}

func newStatsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Attendance statistics",
	}

	daily := &cobra.Command{
		Use:   "daily [date]",
		Short: "Totals for one day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			date := ""
			if len(args) == 1 {
				date = args[0]
			}
			sum, err := a.Attendance.DailyStats(cmd.Context(), date)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(sum, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %d present, %d on time, %d late\n", sum.Date, sum.Total, sum.OnTime, sum.Late)
				printRoleCounts(w, sum.ByRole)
			})
		},
	}

	var recent int
	prefect := &cobra.Command{
		Use:   "prefect <prefect-number>",
		Short: "History and attendance rate for one prefect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			sum, err := a.Attendance.PrefectStats(cmd.Context(), args[0], recent)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(sum, func(w io.Writer) {
				fmt.Fprintf(w, "#%s: %d day(s), %d on time, %d late, rate %.1f%%\n",
					sum.PrefectNumber, sum.TotalDays, sum.OnTimeDays, sum.LateDays, sum.AttendanceRate)
				for _, r := range sum.Recent {
					fmt.Fprintf(w, "  %s %s\n", r.Date, r.Role)
				}
			})
		},
	}
	prefect.Flags().IntVar(&recent, "recent", attendance.DefaultRecentSize, "how many recent records to show")

	var rolesRange string
	roles := &cobra.Command{
		Use:   "roles",
		Short: "Counts per role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			counts, err := a.Attendance.RoleDistribution(cmd.Context(), rolesRange)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(counts, func(w io.Writer) { printRoleCounts(w, counts) })
		},
	}
	roles.Flags().StringVar(&rolesRange, "range", "", "limit to a window: 30m, 24h, 7d, 30d or 12w")

	var tsRange string
	series := &cobra.Command{
		Use:   "timeseries",
		Short: "Bucketed counts over a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			res, err := a.Attendance.TimeSeries(cmd.Context(), tsRange)
			if err != nil {
				return out.Fail(err)
			}
			loc := a.Attendance.Policy().Location
			return out.Success(res, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "END\tTOTAL\tON TIME\tLATE\tAVG")
				for _, b := range res.Buckets {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", b.End.In(loc).Format("01-02 15:04"), b.Total, b.OnTime, b.Late, avgClock(b))
				}
				tw.Flush()
			})
		},
	}
	series.Flags().StringVar(&tsRange, "range", "7d", "30m, 24h, 7d, 30d or 12w")

	cmd.AddCommand(daily, prefect, roles, series)
	return cmd
}

func printRoleCounts(w io.Writer, counts []attendance.RoleCount) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tTOTAL\tON TIME\tLATE")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Role, c.Total, c.OnTime, c.Late)
	}
	tw.Flush()
}

func avgClock(b attendance.Bucket) string {
	if b.Total == 0 {
		return "-"
	}
	m := int(b.AvgMinutes)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
