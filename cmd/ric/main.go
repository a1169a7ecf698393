// Package main provides the entry point for the ric server CLI.
package main

import (
	"os"

	"github.com/havenops/ric/cmd/ric/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
