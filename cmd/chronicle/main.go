// Command chronicle is the command-line collaborator of the story continuity
// engine: it records what happens in a campaign, recalls it for the narrator,
// tracks arcs and threads, suggests narrative events and runs maintenance.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := execute(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
