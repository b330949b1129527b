// Command tsaudit checks the tree-sitter language manifest against the
// vendored tags queries and the compiled-in grammars.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "tsaudit",
	Short:        "Audit tree-sitter languages and queries",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
