package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/kailas-cloud/vecshop/cmd/vecshop/commands"
)

func main() {
	// A missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
