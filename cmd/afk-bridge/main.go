package main

import (
	"os"

	"github.com/life-stream-dev/afk-bridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
