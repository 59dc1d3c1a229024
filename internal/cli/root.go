// Package cli implements pnsctl, the operator CLI for the indexer's read and
// job APIs.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "pnsctl",
		Short:   "Cross-chain naming registry CLI",
		Long:    `pnsctl queries the pns-indexer read API and manages its sync job queue.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: pns.toml or .pns.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "indexer URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "operator API key")

	// Add subcommands
	rootCmd.AddCommand(createLookupCmd())
	rootCmd.AddCommand(createRecordsCmd())
	rootCmd.AddCommand(createDomainsCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createJobsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the indexer URL from flag, env, config file, or default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("PNS_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Default
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	// 1. Command line flag
	if apiKey != "" {
		return apiKey
	}

	// 2. Environment variable
	if env := os.Getenv("PNS_API_KEY"); env != "" {
		return env
	}

	// 3. Credentials file (keyed by server URL)
	serverURL := getServer()
	if cred := getCredential(serverURL); cred != "" {
		return cred
	}

	return ""
}
