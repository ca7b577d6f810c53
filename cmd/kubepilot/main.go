package main

import (
	"os"

	"github.com/kubepilot/kubepilot/cmd/kubepilot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
