package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/studyforge/studyforge/cmd"
)

func main() {
	// Load API keys from a local .env file if present.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
