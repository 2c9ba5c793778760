package main

import (
	"os"

	"olmera/cmd/olmera/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
