package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewParkedCommand creates the parked command group.
func NewParkedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parked",
		Short: "Inspect and requeue propagation tasks that exhausted their retries",
		Long: `A parked task blocks later changes of the same request from reaching
the system of record until an operator requeues it.`,
	}

	cmd.AddCommand(newParkedListCommand(rootOpts))
	cmd.AddCommand(newParkedRequeueCommand(rootOpts))
	return cmd
}

func newParkedListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List parked tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openContainer(ctx, opts)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			tasks, err := c.Coordinator().Parked(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(out, "no parked tasks")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tREQUEST\tOP\tATTEMPTS\tUPDATED\tLAST ERROR")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
					t.Seq, t.RequestID, t.Op, t.Attempts, t.UpdatedAt.Format(time.RFC3339), t.LastError)
			}
			return tw.Flush()
		},
	}
}

func newParkedRequeueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <seq>",
		Short: "Reset a parked task so it is retried",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || seq <= 0 {
				return fmt.Errorf("seq must be a positive integer, got %q", args[0])
			}

			ctx := cmd.Context()
			c, err := openContainer(ctx, opts)
			if err != nil {
				return err
			}
			defer closeContainer(c)

			task, err := c.Coordinator().Requeue(ctx, seq)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, task)
			}
			fmt.Fprintf(out, "task %d for request %s requeued\n", task.Seq, task.RequestID)
			return nil
		},
	}
}
