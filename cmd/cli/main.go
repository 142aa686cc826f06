// Package main is the entry point for the dq CLI binary.
package main

import (
	"os"

	cli "dynaquery/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
