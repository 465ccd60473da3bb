package main

import (
	"os"

	"github.com/meshboard/meshboard/cmd/meshboard-server/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
