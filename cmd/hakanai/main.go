// Command hakanai is the zero-knowledge secret-sharing CLI client.
package main

import (
	"os"

	"github.com/hakanai/hakanai/internal/cli"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	cli.SetVersionInfo(version, gitCommit, buildDate)
	os.Exit(cli.Execute())
}
