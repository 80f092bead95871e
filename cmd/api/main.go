package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"meeting-insights-go/internal/logger"
)

func main() {
	_ = godotenv.Load() // loads .env

	if err := newRootCmd().Execute(); err != nil {
		logger.New().WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meeting-insights",
		Short:         "Merge, transcribe and analyze recorded meetings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newExportCmd())
	return root
}
