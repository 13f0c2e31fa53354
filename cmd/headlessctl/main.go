package main

import (
	"os"

	"github.com/headlessctl/headlessctl/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
