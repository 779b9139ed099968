// Package main is the entry point for the vigil incident pipeline.
package main

import (
	"fmt"
	"os"

	"vigil/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
