// again re-executes source files of a running program as they change.
package main

import (
	"os"

	"github.com/hupe1980/again/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
