package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Pull the system of record into the local cache once",
		Long: `Refresh the directory and, when the remote high-water mark moved past
the local one (or --force is given), replace cached requests from a remote
snapshot. Requests with unpropagated local changes are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			runErr := c.Reconciler().RunOnce(ctx, force)
			status := c.Reconciler().Status()

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := writeJSON(out, status); err != nil {
					return err
				}
				return runErr
			}
			if runErr != nil {
				return runErr
			}

			st := status.LastStats
			fmt.Fprintf(out, "reconciled: %d upserted, %d removed, %d skipped (open tasks), %d skipped (invalid), %d skipped (newer locally)\n",
				st.Upserted, st.Removed, st.SkippedOpen, st.SkippedInvalid, st.SkippedStale)
			if !status.Watermark.IsZero() {
				fmt.Fprintf(out, "watermark: %s\n", status.Watermark.Format("2006-01-02T15:04:05.000000Z07:00"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace even when the high-water mark has not moved")
	return cmd
}
