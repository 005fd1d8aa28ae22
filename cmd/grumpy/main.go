// Package main is the entry point for the grumpy CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/grumpy/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
