// Command tinyagi is the CLI and daemon entrypoint: `tinyagi serve` runs the
// queue processor, proactive scheduler, and channel adapters; every other
// subcommand inspects or mutates the durable repository in place.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tinyagi/tinyagi/cmd/tinyagi/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := commands.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
