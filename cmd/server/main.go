package main

import (
	"os"
)

// main hands off to the CLI. Business logic lives in internal services packages.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
