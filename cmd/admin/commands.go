package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-inventory/internal/logging"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/admin"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/config"
)

const timeLayout = "2006-01-02 15:04:05"

func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(svc admin.AdminService) error {
				resp, err := svc.ListItems(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list items: %w", err)
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				printItems(cmd.OutOrStdout(), resp.Items)
				return nil
			})
		},
	}
}

func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <item-id>",
		Short: "Show one item including its photo ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(svc admin.AdminService) error {
				item, err := svc.GetItem(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get item %s: %w", args[0], err)
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), item)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:          %s\n", item.ID)
				fmt.Fprintf(out, "Name:        %s\n", item.Name)
				fmt.Fprintf(out, "Description: %s\n", item.Description)
				fmt.Fprintf(out, "Photo:       %s\n", photoRef(item))
				fmt.Fprintf(out, "Created:     %s\n", item.CreatedAt.Format(timeLayout))
				fmt.Fprintf(out, "Updated:     %s\n", item.UpdatedAt.Format(timeLayout))
				return nil
			})
		},
	}
}

func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(svc admin.AdminService) error {
				resp, err := svc.GetStatistics(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get statistics: %w", err)
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), resp)
				}

				stats := resp.Statistics
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total items:     %d\n", stats.TotalCount)
				fmt.Fprintf(out, "With photo:      %d\n", stats.WithPhoto)
				fmt.Fprintf(out, "Without photo:   %d\n", stats.WithoutPhoto)
				if stats.OldestItem != nil {
					fmt.Fprintf(out, "Oldest item:     %s\n", stats.OldestItem.Format(timeLayout))
					fmt.Fprintf(out, "Newest item:     %s\n", stats.NewestItem.Format(timeLayout))
				}
				fmt.Fprintf(out, "Computed at:     %s\n", resp.ComputedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func NewOrphansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List stored photos that no item references",
		Long: `List stored photos that no item references.

Orphans are left behind when a record write fails after its photo was stored,
or when releasing a replaced photo fails. Nothing is deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(svc admin.AdminService) error {
				resp, err := svc.FindOrphans(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to find orphans: %w", err)
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), resp)
				}

				out := cmd.OutOrStdout()
				if resp.Count == 0 {
					fmt.Fprintln(out, "No orphaned photos found.")
					return nil
				}
				for _, ref := range resp.Refs {
					fmt.Fprintln(out, ref)
				}
				fmt.Fprintf(out, "\n%d orphaned photo(s)\n", resp.Count)
				return nil
			})
		},
	}
}

// withAdmin builds the configured stores, runs fn against them and closes
// them again.
func withAdmin(cmd *cobra.Command, fn func(admin.AdminService) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	svc, err := cfg.BuildService()
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer cfg.Close()

	return fn(admin.New(svc))
}

func loadConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	flags := cmd.Flags()
	configFile, _ := flags.GetString("config")
	databaseURL, _ := flags.GetString("database-url")
	storageURL, _ := flags.GetString("storage-url")
	verbose, _ := flags.GetBool("verbose")

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(cmd.ErrOrStderr(), "development", level)
	if err != nil {
		return nil, err
	}

	opts := []config.Option{}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	opts = append(opts, config.WithEnv())
	if databaseURL != "" {
		opts = append(opts, config.WithDatabaseURL(databaseURL))
	}
	if storageURL != "" {
		opts = append(opts, config.WithStorageURL(storageURL))
	}
	// The admin tool reads only; lifecycle events never fire.
	opts = append(opts, config.WithLogger(logger), config.WithEventLogging(false))

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printItems(out io.Writer, items []*simpleinventory.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No items found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPHOTO\tCREATED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			item.ID,
			truncate(item.Name, 30),
			truncate(photoRef(item), 40),
			item.CreatedAt.Format(timeLayout))
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d item(s)\n", len(items))
}

func photoRef(item *simpleinventory.Item) string {
	if !item.HasPhoto() {
		return "-"
	}
	return *item.PhotoRef
}

// truncate shortens s to at most max runes
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
