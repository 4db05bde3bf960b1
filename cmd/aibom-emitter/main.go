// Package main is the entry point for the aibom-emitter CLI.
package main

import (
	"os"

	"github.com/airblackbox/runtime-aibom-emitter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
