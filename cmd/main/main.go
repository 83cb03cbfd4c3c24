package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/BartekS5/caregap/internal/cli"
	"github.com/BartekS5/caregap/pkg/logger"
)

func main() {
	logger.Init()
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
