// Package main provides the applier CLI: scrape feed ingestion, resume
// matching, application preparation and review, and the HTTP API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "applier",
	Short:         "Job matcher and application tracker",
	Long:          "applier deduplicates scraped job listings, ranks them against your resume by embedding similarity and tracks each application from draft to submission.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

// addGlobalFlags registers the flags every command accepts
func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&configPath, "config", "", "Config file, YAML or JSON (default ./applier.yaml when present)")
	flags.BoolP("debug", "d", false, "Verbose/debug logging")
	flags.BoolP("json", "j", false, "Log as JSON")
	flags.String("profile", "", "Path to your base resume (overrides profile_path)")
	flags.String("storage-dir", "", "Directory for generated documents and screenshots (overrides storage_dir)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
