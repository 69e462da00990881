// Command uploadctl drives the Multipart Upload Engine from the command
// line: start, pause, resume, and cancel resumable uploads, inspect
// progress, recover crashed sessions, and serve a local status endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/uploadkit/engine/cmd/uploadctl/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
