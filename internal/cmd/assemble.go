package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/charmbracelet/codectx/internal/feature"
)

type assembleSummary struct {
	Tokens   int            `json:"tokens"`
	Features []featureEntry `json:"features"`
}

type featureEntry struct {
	Path     string `json:"path"`
	Level    string `json:"level"`
	Interval string `json:"interval,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
	DiffRef  string `json:"diff_ref,omitempty"`
}

func newFeatureEntry(f feature.Feature) featureEntry {
	e := featureEntry{
		Path:    f.RelPath,
		Level:   f.Level.String(),
		Pinned:  f.UserIncluded,
		DiffRef: f.DiffRef,
	}
	if f.Interval != nil {
		e.Interval = f.Interval.String()
	}
	return e
}

func newAssembleCmd() *cobra.Command {
	var (
		flags     contextFlags
		includes  []string
		excludes  []string
		ceiling   int
		asJSON    bool
		showStats bool
	)
	cmd := &cobra.Command{
		Use:   "assemble [prompt]",
		Short: "Print the context assembled for a prompt",
		Example: `  codectx assemble --include main.go "why does startup hang"
  codectx assemble --tokens 8000 --include 'internal/**/*.go' --diff HEAD~1`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContext(cmd, &flags)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			for _, spec := range includes {
				if _, err := c.Include(ctx, spec); err != nil {
					return err
				}
			}
			for _, spec := range excludes {
				if _, err := c.Exclude(ctx, spec); err != nil {
					return err
				}
			}

			model, _ := cmd.Flags().GetString("model")
			limit, err := resolveCeiling(cmd, c, model, ceiling)
			if err != nil {
				return err
			}
			res, err := c.Assemble(ctx, strings.Join(args, " "), model, limit)
			printWarnings(cmd.ErrOrStderr(), c)
			if err != nil {
				return err
			}

			if asJSON {
				summary := assembleSummary{Tokens: res.Tokens, Features: make([]featureEntry, 0, len(res.Features))}
				for _, f := range res.Features {
					summary.Features = append(summary.Features, newFeatureEntry(f))
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}

			if res.Empty {
				fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to include.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Text)
			if showStats {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s features, %s tokens\n",
					humanize.Comma(int64(len(res.Features))), humanize.Comma(int64(res.Tokens)))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVarP(&includes, "include", "i", nil, "Pin a file, directory, glob or path:start-end")
	cmd.Flags().StringArrayVarP(&excludes, "exclude-path", "x", nil, "Unpin a file, directory, glob or path:start-end")
	cmd.Flags().IntVarP(&ceiling, "tokens", "t", 0, "Token ceiling (defaults to the model's context window; 0 includes pinned files only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the selected features as JSON instead of the text")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print feature and token totals to stderr")
	return cmd
}

type contextWindower interface {
	MaxContextTokens(model string) (int, error)
}

// resolveCeiling returns --tokens when it was given and the model's context
// window otherwise.
func resolveCeiling(cmd *cobra.Command, w contextWindower, model string, ceiling int) (int, error) {
	if cmd.Flags().Changed("tokens") {
		return ceiling, nil
	}
	return w.MaxContextTokens(model)
}
