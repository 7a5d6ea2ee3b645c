package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"prefect-attendance/internal/remotesync"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Remote store upload, download and history",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Connectivity and last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			st, err := a.Sync.Status(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(st, func(w io.Writer) {
				fmt.Fprintf(w, "device:     %s\n", st.DeviceID)
				fmt.Fprintf(w, "configured: %t (%s)\n", st.Configured, st.Driver)
				fmt.Fprintf(w, "connected:  %t\n", st.Connected)
				if st.LastSync != nil {
					fmt.Fprintf(w, "last sync:  %s, %d remote record(s)\n", st.LastSync.Format("2006-01-02 15:04:05"), st.RemoteCount)
				}
				if st.LastError != "" {
					fmt.Fprintf(w, "last error: %s\n", st.LastError)
				}
			})
		},
	}

	upload := &cobra.Command{
		Use:   "upload",
		Short: "Upsert every local record to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			res, err := a.Sync.Upload(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "uploaded %d record(s); remote now holds %d for %s\n", res.Uploaded, res.RemoteCount, res.DeviceID)
			})
		},
	}

	var apply bool
	download := &cobra.Command{
		Use:   "download",
		Short: "Show this device's remote records; --apply replaces local records with them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			recs, err := a.Sync.Download(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			if apply {
				if err := a.Sync.ApplyDownload(cmd.Context(), recs); err != nil {
					return out.Fail(err)
				}
			}
			return out.Success(map[string]any{"records": len(recs), "applied": apply}, func(w io.Writer) {
				if apply {
					fmt.Fprintf(w, "replaced local records with %d remote record(s)\n", len(recs))
					return
				}
				fmt.Fprintf(w, "%d remote record(s); rerun with --apply to replace local records\n", len(recs))
			})
		},
	}
	download.Flags().BoolVar(&apply, "apply", false, "replace all local records with the download")

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete old remote backup descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			if !cmd.Flags().Changed("keep") {
				keep = a.Config.Remote.KeepBackups
			}
			n, err := a.Sync.PruneRemoteHistory(cmd.Context(), keep)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(map[string]int{"deleted": n, "kept": keep}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %d descriptor(s), kept the newest %d\n", n, keep)
			})
		},
	}
	prune.Flags().IntVar(&keep, "keep", remotesync.DefaultKeepBackups, "descriptors to keep")

	history := &cobra.Command{
		Use:   "history",
		Short: "Remote backup descriptors, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter(cmd, opts)
			a, err := open(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			defer a.Close()

			items, err := a.Sync.History(cmd.Context())
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(items, func(w io.Writer) {
				for _, m := range items {
					fmt.Fprintf(w, "%s  %s  %4d records  %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.ID, m.RecordCount, m.Checksum)
				}
			})
		},
	}

	cmd.AddCommand(status, upload, download, prune, history)
	return cmd
}
