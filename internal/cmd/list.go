package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charmbracelet/codectx/internal/feature"
)

func newListCmd() *cobra.Command {
	var (
		flags contextFlags
		level string
	)
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the features codectx can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := feature.ParseLevel(level)
			if err != nil {
				return err
			}
			c, err := openContext(cmd, &flags)
			if err != nil {
				return err
			}
			defer c.Close()

			fs, err := c.Enumerate(cmd.Context(), lvl)
			printWarnings(cmd.ErrOrStderr(), c)
			if err != nil {
				return err
			}
			feature.Sort(fs)
			for _, f := range fs {
				line := f.RelPath
				if f.Interval != nil {
					line += ":" + f.Interval.String()
				}
				if f.DiffRef != "" {
					line += " (changed)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&level, "level", "l", feature.FileName.String(), "Detail level (interval splits files at symbol boundaries)")
	return cmd
}
