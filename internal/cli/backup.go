package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/backup"
)

func newBackupCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, check and restore backup files",
	}

	var (
		mode       string
		passphrase string
		output     string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Write a backup file (-o) or one into the configured backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			if output == "" {
				e, err := a.Backup.WriteLocal(cmd.Context())
				if err != nil {
					return out.Fail(err)
				}
				return out.Success(e, func(w io.Writer) {
					fmt.Fprintf(w, "wrote %s (%d records, checksum %s)\n", e.File, e.Records, e.Checksum)
				})
			}

			m, err := backup.ParseMode(mode)
			if err != nil {
				return out.Fail(err)
			}
			b, env, err := a.Backup.Export(cmd.Context(), m, passphrase)
			if err != nil {
				return out.Fail(err)
			}
			if err := os.WriteFile(output, b, 0o600); err != nil {
				return out.Fail(attendance.ErrStorage("write "+output, err))
			}
			return out.Success(env.SystemInfo, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s (%d records, checksum %s)\n", output, env.SystemInfo.RecordCount, env.Checksum)
			})
		},
	}
	create.Flags().StringVar(&mode, "mode", string(backup.ModePlain), "plain, xor or sealed")
	create.Flags().StringVar(&passphrase, "passphrase", "", "passphrase for xor/sealed")
	create.Flags().StringVarP(&output, "output", "o", "", "file to write")

	var checkPass string
	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a backup file without restoring it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return out.Fail(attendance.ErrValidation("cannot read " + args[0]))
			}
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			env, d, err := a.Backup.Inspect(raw, checkPass)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(env.SystemInfo, func(w io.Writer) {
				fmt.Fprintf(w, "ok: version %s, %d records, taken %s\n", env.Version, len(d.Records), env.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
			})
		},
	}
	validate.Flags().StringVar(&checkPass, "passphrase", "", "passphrase for encrypted files")

	var (
		restorePass string
		yes         bool
	)
	restore := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace every record with the contents of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			if !yes {
				return out.Fail(attendance.ErrValidation("restore replaces all records; pass --yes to confirm"))
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return out.Fail(attendance.ErrValidation("cannot read " + args[0]))
			}
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			n, err := a.Backup.Import(cmd.Context(), raw, restorePass)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(map[string]int{"restored": n}, func(w io.Writer) {
				fmt.Fprintf(w, "restored %d record(s)\n", n)
			})
		},
	}
	restore.Flags().StringVar(&restorePass, "passphrase", "", "passphrase for encrypted files")
	restore.Flags().BoolVarP(&yes, "yes", "y", false, "confirm replacing all records")

	history := &cobra.Command{
		Use:   "history",
		Short: "Backups written into the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			items, err := a.Backup.History(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(items, func(w io.Writer) {
				for _, e := range items {
					fmt.Fprintf(w, "%s  %4d records  %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Records, e.File)
				}
			})
		},
	}

	cmd.AddCommand(create, validate, restore, history)
	return cmd
}
