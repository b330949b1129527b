package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/codectx/internal/cmd"
	"github.com/charmbracelet/codectx/internal/log"
)

func main() {
	defer log.RecoverPanic("main", func() {
		os.Exit(1)
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
