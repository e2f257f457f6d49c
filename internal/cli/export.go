package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gamelog/pkg/export"
)

func newExportCommand(e *env) *cobra.Command {
	var q queryFlags
	var out string
	var archive bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current view of your log to a PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			if archive {
				link, err := e.remote.ArchiveExport(cmd.Context(), q.query())
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%s\n%s\n", link.Filename, link.URL)
				return nil
			}

			now := e.now()
			if out == "" {
				out = export.Filename(now)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			err = export.Render(f, export.Document{
				OwnerTag:    user.DisplayTag(),
				Games:       e.library.View(q.query()),
				GeneratedAt: now,
				Filter:      describe(q),
			})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(out)
				return fmt.Errorf("render export: %w", err)
			}
			fmt.Fprintf(e.out, "Wrote %s.\n", out)
			return nil
		},
	}
	q.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default gamelog-<timestamp>.pdf)")
	cmd.Flags().BoolVar(&archive, "archive", false, "render on the server and print a download link")
	return cmd
}

func describe(q queryFlags) string {
	query := q.query()
	var parts []string
	if query.Text != "" {
		parts = append(parts, fmt.Sprintf("title contains %q", query.Text))
	}
	if query.Platform != "" {
		parts = append(parts, "platform "+string(query.Platform))
	}
	return strings.Join(parts, ", ")
}
