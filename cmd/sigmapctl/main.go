package main

import (
	"os"

	"github.com/sigmap/sigmap/cmd/sigmapctl/commands"
)

func main() {
	if err := commands.GetRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
