// Command laborsaver is the entry point for the labor insurance assistant.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// tiered question-answering API.
package main

import (
	"fmt"
	"os"

	"github.com/Gskdl78/Labor-saver/cmd/laborsaver/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
