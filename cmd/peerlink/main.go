package main

import (
	"os"

	"peerlink/cmd/peerlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
