// Package main is the entry point for the trials API server.
package main

import (
	"os"

	"github.com/AntonAks/TaskFromTal/cmd/trials-api/app"
	"github.com/AntonAks/TaskFromTal/internal/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
