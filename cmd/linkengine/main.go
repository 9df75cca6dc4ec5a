package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediavault/link-engine/internal/config"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkengine",
		Short: "Link Engine - device-bound access links for stored media",
		Long:  `The link engine issues device-bound access tokens for stored media files and enforces rate limits, impression dedup and entitlement checks on every access.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(genkeyCmd())
	rootCmd.AddCommand(adminTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Warning: failed to load config from %s: %v\n", path, err)
		fmt.Println("Using default configuration")
		cfg = config.DefaultConfig()
	}
	return cfg
}
