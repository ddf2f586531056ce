// Package main is the entry point for the kasumi binary.
package main

import (
	"os"

	"github.com/kasumi-bot/kasumi/internal/cli"
)

func main() {
	// rootCmd already reports the error on stderr
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
