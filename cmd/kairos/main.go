// Package main provides the kairos CLI for inspecting configuration,
// exercising the data plane against a synthetic upstream and serving
// its metrics.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
