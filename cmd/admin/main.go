package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Values already set in the environment take precedence over .env
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Simple Inventory Admin CLI",
		Long: `Simple Inventory Admin CLI

An operator tool that reads the inventory through the same record and photo
stores the server uses. It never modifies data.

Stores are selected with DATABASE_URL and STORAGE_URL (or the matching flags).
Configuration can be loaded from a .env file in the current directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("database-url", "", "record store URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().String("storage-url", "", "photo store URL (overrides STORAGE_URL)")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log store activity to stderr")

	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewStatsCommand())
	rootCmd.AddCommand(NewOrphansCommand())

	return rootCmd
}
