package main

import (
	"os"

	"github.com/zjrosen/gitdir/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
