// Package cmd provides the command-line interface for proteus.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	outputFile string
	force      bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate sample configuration files",
	Long:  `Generate sample configuration files for the proteus SNMP management engine.`,
	Example: `# Generate config to stdout
	proteus generate

	# Generate config to specific file
	proteus generate --output config.yaml

	# Overwrite existing file
	proteus generate --output config.yaml --force`,
	RunE: generateConfig,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: stdout)")
	generateCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing file")
}

func generateConfig(cmd *cobra.Command, args []string) error {
	configYAML := `# Proteus SNMP Management Engine Configuration
# This is a sample configuration file with default values and examples.
# Modify the values according to your environment and requirements.

app:
  name: "proteus"
  log_level: "info"
  log_format: "json"
  shutdown_timeout: "30s"
  heartbeat_enabled: true
  heartbeat_interval: "60s"

mib:
  definition_file: "/etc/proteus/definitions.json"
  include_builtin: true
  watch_file: true
  debounce_delay: "500ms"

engine:
  max_walk_results: 1000

updater:
  interval: "10s"
  update_counters: true
  counter_step: 1

traps:
  subscriber_buffer: 64
  retention_count: 1000

devices:
  default_port: 161
  default_trap_port: 162
  default_community: "public"
  default_version: "2c"
  default_timeout: "5s"
  default_retries: 1
  entries:
    - id: "core-switch-1"
      address: "192.0.2.10"
      port: 161
      version: "2c"
      community: "public"

transport:
  max_walk_results: 1000
  probe_oid: "1.3.6.1.2.1.1.1.0"
  probe_interval: "60s"

listener:
  enabled: true
  listen_address: "0.0.0.0:162"
  community: "public"
  allow_unknown: false

storage:
  database_type: "sqlite3"
  connection_string: "./proteus_traps.db"
  retention_days: 30
  batch_size: 100
  flush_interval: "5s"

resolver:
  cache_enabled: true
  cache_size: 10000
  cache_expiry: "1h"

client:
  timeout: "30s"
  max_retries: 3
  retry_delay: "1s"
  user_agent: "Proteus-SNMP-Engine/1.0"

notifier:
  enable_notifications: true
  max_concurrent: 5
  queue_size: 1000
  webhooks:
    - name: "alertmanager"
      url: "http://alertmanager:9093/api/v2/alerts"
      method: "POST"
      timeout: "30s"
      min_severity: "warning"
      enabled: true

metrics:
  enabled: true
  listen_address: ":9090"
  update_interval: "30s"
`

	// Output to file or stdout
	if outputFile == "" {
		fmt.Print(configYAML)
		return nil
	}

	// Check if file exists and force flag
	if _, err := os.Stat(outputFile); err == nil && !force {
		return fmt.Errorf("file %s already exists, use --force to overwrite", outputFile)
	}

	// Create directory if needed
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(outputFile, []byte(configYAML), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Configuration file generated: %s\n", outputFile)
	return nil
}
