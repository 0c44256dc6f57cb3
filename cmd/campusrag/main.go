package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/campus-genai/campusrag/internal/cli"
)

func main() {
	// A missing .env is fine; deployments set the environment directly.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
