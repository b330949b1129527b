// Package cmd implements the codectx command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/charmbracelet/codectx/internal/codectx"
	"github.com/charmbracelet/codectx/internal/config"
	"github.com/charmbracelet/codectx/internal/log"
	"github.com/charmbracelet/codectx/internal/tokens"
)

const defaultModel = "gpt-4o"

// Execute runs the root command with the process arguments.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codectx",
		Short: "Assemble token-bounded repository context for a prompt",
		Long: `codectx selects the files, symbols and excerpts of a repository that fit a
token budget, pinning what you include and filling the rest by relevance.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			log.Setup(filepath.Join(config.DataDir(), "logs", "codectx.log"), debug)
			tokens.InitTiktokenLoader(tokens.CacheDir())
			return nil
		},
	}

	root.PersistentFlags().BoolP("debug", "d", false, "Debug logging")
	root.PersistentFlags().StringP("cwd", "c", "", "Repository root (defaults to the current directory)")
	root.PersistentFlags().StringP("model", "m", defaultModel, "Model whose tokenizer prices the context")
	root.PersistentFlags().StringSlice("exclude", nil, "Glob patterns to leave out of enumeration")
	root.PersistentFlags().BoolP("yes", "y", false, "Accept embedding costs without asking")

	root.AddCommand(
		newAssembleCmd(),
		newSearchCmd(),
		newListCmd(),
		newSchemaCmd(),
	)
	return root
}

// rootDir resolves --cwd against the working directory.
func rootDir(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		return wd, nil
	}
	return filepath.Abs(cwd)
}

// contextFlags holds per-command overrides of the loaded configuration.
type contextFlags struct {
	autoTokens int
	noCodeMap  bool
	embeddings bool
	diff       string
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.autoTokens, "auto-tokens", 0, "Cap on automatically selected tokens (0 disables auto-selection)")
	cmd.Flags().BoolVar(&f.noCodeMap, "no-code-map", false, "Disable symbol-map detail levels")
	cmd.Flags().BoolVar(&f.embeddings, "embeddings", false, "Rank files against the prompt with embeddings")
	cmd.Flags().StringVar(&f.diff, "diff", "", "Git revision to annotate and scope changes against")
}

func (f *contextFlags) apply(cmd *cobra.Command, opts *config.Options) {
	if cmd.Flags().Changed("auto-tokens") {
		v := f.autoTokens
		opts.AutoTokens = &v
	}
	opts.NoCodeMap = opts.NoCodeMap || f.noCodeMap
	opts.UseEmbeddings = opts.UseEmbeddings || f.embeddings
	if f.diff != "" {
		opts.DiffBaseline = f.diff
	}
}

// openContext builds a Context over --cwd with the config files, the
// command's overrides and an interactive cost confirmer.
func openContext(cmd *cobra.Command, flags *contextFlags) (*codectx.Context, error) {
	root, err := rootDir(cmd)
	if err != nil {
		return nil, err
	}
	opts, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if flags != nil {
		flags.apply(cmd, opts)
	}
	excludes, _ := cmd.Flags().GetStringSlice("exclude")
	yes, _ := cmd.Flags().GetBool("yes")

	var confirmer codectx.Confirmer = &promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
	if yes {
		confirmer = codectx.ConfirmFunc(func(context.Context, float64, int) (bool, error) { return true, nil })
	}
	return codectx.New(cmd.Context(), root,
		codectx.WithOptions(*opts),
		codectx.WithExcludePatterns(excludes...),
		codectx.WithConfirmer(confirmer),
	)
}

func printWarnings(w io.Writer, c *codectx.Context) {
	for _, msg := range c.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}
