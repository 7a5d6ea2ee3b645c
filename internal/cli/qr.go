package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/qrpass"
)

func newQRCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Signed QR badges",
	}

	var (
		output string
		size   int
	)
	badge := &cobra.Command{
		Use:   "badge <prefect-number> <role>",
		Short: "Print a badge payload, or write its PNG with -o",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			req := qrpass.BadgeRequest{PrefectNumber: args[0], Role: args[1]}
			if output == "" {
				res, err := a.QR.Badge(req)
				if err != nil {
					return out.Fail(err)
				}
				return out.Success(res, func(w io.Writer) { fmt.Fprintln(w, res.Text) })
			}
			png, err := a.QR.BadgePNG(req, size)
			if err != nil {
				return out.Fail(err)
			}
			if err := os.WriteFile(output, png, 0o644); err != nil {
				return out.Fail(attendance.ErrStorage("write "+output, err))
			}
			return out.Success(map[string]any{"file": output, "bytes": len(png)}, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s\n", output)
			})
		},
	}
	badge.Flags().StringVarP(&output, "output", "o", "", "PNG file to write")
	badge.Flags().IntVar(&size, "size", qrpass.DefaultPNGSize, "PNG edge in pixels")

	scan := &cobra.Command{
		Use:   "scan <text>",
		Short: "Mark attendance from the text read off a badge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			res, err := a.QR.Scan(cmd.Context(), args[0])
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s #%s marked (%s)\n", res.Record.Role.LongName(), res.Record.PrefectNumber, res.Status)
			})
		},
	}

	scans := &cobra.Command{
		Use:   "scans",
		Short: "Recent badge scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			items, err := a.QR.Scans(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(items, func(w io.Writer) {
				for _, s := range items {
					fmt.Fprintf(w, "%s  #%s  %s\n", s.ScannedAt.Format("2006-01-02 15:04:05"), s.PrefectNumber, s.Role)
				}
			})
		},
	}

	cmd.AddCommand(badge, scan, scans)
	return cmd
}
