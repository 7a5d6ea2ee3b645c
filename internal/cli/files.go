package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/csvcodec"
	"prefect-attendance/internal/report"
)

func newImportCommand(opts *RootOptions) *cobra.Command {
	var (
		kind    string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bulk sheet (.csv or .xlsx) or a timestamp export (.csv)",
		Example: `  prefectctl import roster.csv
  prefectctl import export.csv --kind records --replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			f, err := os.Open(args[0])
			if err != nil {
				return out.Fail(attendance.ErrValidation("cannot open " + args[0]))
			}
			defer f.Close()

			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			ctx := cmd.Context()
			xlsx := strings.EqualFold(filepath.Ext(args[0]), ".xlsx")
			var res report.ImportResult
			switch {
			case kind == report.KindBulk && xlsx:
				res, err = a.Report.ImportBulkXLSX(ctx, f)
			case kind == report.KindBulk:
				res, err = a.Report.ImportBulk(ctx, f)
			case kind == report.KindRecords && !xlsx:
				res, err = a.Report.ImportRecords(ctx, f, replace)
			default:
				err = attendance.ErrValidation("unsupported kind/file combination")
			}
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d record(s)\n", res.Imported)
				if res.Bulk != nil {
					for _, e := range res.Bulk.Errors {
						fmt.Fprintf(w, "  rejected %s %s: %s\n", e.PrefectNumber, e.Role, e.Reason)
					}
				}
				for _, s := range res.Skipped {
					fmt.Fprintf(w, "  line %d skipped: %s\n", s.Line, s.Reason)
				}
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", report.KindBulk, "bulk (mark now) or records (timestamp export)")
	cmd.Flags().BoolVar(&replace, "replace", false, "records only: replace the whole collection")
	return cmd
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var (
		format string
		bom    bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a CSV or XLSX report",
		Example: `  prefectctl export > today.csv
  prefectctl export --as xlsx -o report.xlsx
  prefectctl export --as template -o roster.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			if format == "template" {
				return writeOutput(cmd, out, output, "", csvcodec.Template())
			}

			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			var (
				b    []byte
				name string
			)
			if format == "xlsx" {
				if output == "" {
					return out.Fail(attendance.ErrValidation("xlsx needs -o <file>"))
				}
				b, name, err = a.Report.ExportXLSX(cmd.Context())
			} else {
				b, name, err = a.Report.ExportCSV(cmd.Context(), format, bom)
			}
			if err != nil {
				return out.Fail(err)
			}
			return writeOutput(cmd, out, output, name, b)
		},
	}
	cmd.Flags().StringVar(&format, "as", report.FormatReport, "report, timestamps, xlsx or template")
	cmd.Flags().BoolVar(&bom, "bom", false, "prefix CSV output with a UTF-8 byte order mark")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

// writeOutput writes b to path, or to stdout when path is empty.
func writeOutput(cmd *cobra.Command, out *OutputFormatter, path, suggested string, b []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(b)
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return out.Fail(attendance.ErrStorage("write "+path, err))
	}
	return out.Success(map[string]any{"file": path, "bytes": len(b), "suggestedName": suggested}, func(w io.Writer) {
		fmt.Fprintf(w, "wrote %s (%d bytes)\n", path, len(b))
	})
}
