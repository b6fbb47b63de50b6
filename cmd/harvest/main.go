package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "harvest drives a browser through maps, dns, faq and backup scraping batches.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = os.Getenv("HARVEST_CONFIG")
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaid on HARVEST_* environment settings")
}

// loadConfig reads the environment and the optional YAML overlay.
func loadConfig() (*config.Config, error) {
	return config.LoadFile(configPath)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
