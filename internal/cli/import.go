package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/infrastructure/importer"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	As    string
	Sheet string
	Flush bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Create draft requests from a spreadsheet",
		Long: `Create one draft request per data row of an .xlsx workbook.

The first row holds column names (title, account_id, quarter,
requested_amount, justification, contributors, ...). Rows that fail to
parse or validate are reported and skipped.

Created drafts are queued for propagation. A running server picks them up;
pass --flush to propagate before exiting when no server shares the database.

Examples:
  governor import plan.xlsx --as alice
  governor import plan.xlsx --as alice --sheet FY27 --flush --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "user id the drafts are created for (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "sheet name (first sheet when empty)")
	cmd.Flags().BoolVar(&opts.Flush, "flush", false, "propagate queued tasks before exiting")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	ctx := cmd.Context()

	c, err := openContainer(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeContainer(c)

	im := importer.NewImporter(opts.Sheet, c.Logger().Named("importer"))
	result, err := im.Import(ctx, path, opts.As, c.Service())
	if err != nil {
		return err
	}

	if opts.Flush {
		if err := c.Coordinator().Flush(ctx); err != nil {
			return fmt.Errorf("imported %d drafts but propagation failed: %w", len(result.Created), err)
		}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, result)
	}

	fmt.Fprintf(out, "created %d drafts\n", len(result.Created))
	for _, id := range result.Created {
		fmt.Fprintf(out, "  %s\n", id)
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "skipped %d rows\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  line %d: %s\n", f.Line, f.Err)
		}
	}
	return nil
}
