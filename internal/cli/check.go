package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/me/daymake/internal/catalog"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the job catalog and report unknown dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := catalog.NewDirSource(cfg.JobsDir, logger).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}

			unresolved := catalog.Unresolved(catalog.Graph(jobs))
			out := cmd.OutOrStdout()
			if len(unresolved) == 0 {
				fmt.Fprintf(out, "%d jobs, all dependencies resolved\n", len(jobs))
				return nil
			}

			ids := make([]string, 0, len(unresolved))
			for id := range unresolved {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tUNKNOWN DEPENDENCIES")
			for _, id := range ids {
				fmt.Fprintf(tw, "%s\t%s\n", id, strings.Join(unresolved[id], ", "))
			}
			tw.Flush()

			return fmt.Errorf("%d of %d jobs have unknown dependencies", len(ids), len(jobs))
		},
	}
}
