// katra is the CLI for the tiered memory store.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ckoons/katra-sub002/internal/cli"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
