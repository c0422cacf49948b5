package main

import (
	"os"

	"github.com/conorfennell/ankibot/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
