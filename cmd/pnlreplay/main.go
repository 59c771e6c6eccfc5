package main

import (
	"os"

	"pnlreplay/cmd/pnlreplay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
