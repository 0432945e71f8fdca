package main

import (
	"os"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
