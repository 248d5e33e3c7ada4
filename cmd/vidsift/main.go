package main

import (
	"os"

	"github.com/lmejias/vidsift/cmd/vidsift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
