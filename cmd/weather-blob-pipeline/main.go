// Package main provides the entry point for the weather blob pipeline.
package main

import (
	"log/slog"
	"os"

	"github.com/i474232898/weather-blob-pipeline/cmd/weather-blob-pipeline/app"
)

func main() {
	a := app.New()
	if err := a.Run(); err != nil {
		slog.Error(err.Error())
		if a.UsageError() {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
