// Command statetree runs, tests and validates state tree scenarios and
// manages persisted tree snapshots.
package main

import (
	"os"

	"github.com/roach88/statetree/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
