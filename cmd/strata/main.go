// Command strata runs the grounded theory coding pipeline.
package main

import (
	"os"

	"github.com/strata-qda/strata-cli/internal/adapters/driving/cli"
)

func main() {
	os.Exit(cli.Execute())
}
