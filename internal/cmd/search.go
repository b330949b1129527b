package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charmbracelet/codectx/internal/feature"
)

func newSearchCmd() *cobra.Command {
	var (
		flags      contextFlags
		level      string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank repository features against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := feature.ParseLevel(level)
			if err != nil {
				return err
			}
			flags.embeddings = true
			c, err := openContext(cmd, &flags)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Search(cmd.Context(), strings.Join(args, " "), lvl, maxResults)
			printWarnings(cmd.ErrOrStderr(), c)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, r := range results {
				name := r.Feature.RelPath
				if r.Feature.Interval != nil {
					name += ":" + r.Feature.Interval.String()
				}
				fmt.Fprintf(w, "%.4f\t%s\n", r.Score, name)
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&level, "level", "l", feature.FullCode.String(), "Detail level to rank at (file_name, symbol_map, symbol_map_full, full_code, interval)")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 10, "Number of results (0 for all)")
	return cmd
}
