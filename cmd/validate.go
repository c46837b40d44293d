// Package cmd provides the command-line interface for proteus.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/proteus/internal/session"
	"github.com/geekxflood/proteus/internal/validator"
	"github.com/spf13/cobra"
)

var (
	checkDefinitions bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and object definition files",
	Long:  `Validate configuration files, device entries and optionally the managed object definition files.`,
	Example: `# Validate configuration file
	proteus validate --config config.yaml

	# Validate configuration and object definition files
	proteus validate --config config.yaml --check-definitions

	# Validate using default config locations
	proteus validate`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&checkDefinitions, "check-definitions", false, "Also validate object definition files")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		// Try default locations
		defaultPaths := []string{
			"config.yaml",
			"config.yml",
			"/etc/proteus/config.yaml",
			"/etc/proteus/config.yml",
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		if configPath == "" {
			return fmt.Errorf("no configuration file found, specify with --config or create config.yaml")
		}
	}

	fmt.Printf("Validating configuration file: %s\n", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	// Create config manager to validate the configuration
	manager, err := config.NewManager(config.Options{
		SchemaPath: "cmd/schemas/config.cue",
		ConfigPath: configPath,
	})
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	defer manager.Close()

	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration syntax is valid")

	if err := validateDeviceEntries(manager); err != nil {
		return fmt.Errorf("device validation failed: %w", err)
	}
	fmt.Println("✓ Device entries are valid")

	if checkDefinitions {
		if err := validateDefinitionFiles(manager); err != nil {
			return fmt.Errorf("object definition validation failed: %w", err)
		}
		fmt.Println("✓ Object definition files are valid")
	}

	fmt.Println("✓ Configuration validation completed successfully")
	return nil
}

func validateDeviceEntries(manager config.Provider) error {
	deviceMap, err := manager.GetMap("devices.entries")
	if err != nil {
		// No device section configured
		return nil
	}

	jsonData, err := json.Marshal(deviceMap)
	if err != nil {
		return err
	}

	var devices []session.Device
	if err := json.Unmarshal(jsonData, &devices); err != nil {
		return fmt.Errorf("device entries are malformed: %w", err)
	}

	report := validator.ValidateDevices(devices)
	if !report.Valid() {
		for _, problem := range report.Problems {
			fmt.Printf("  %s\n", problem.Error())
		}
		return fmt.Errorf("%d problem(s) found in %d device entries", len(report.Problems), report.Entries)
	}

	fmt.Printf("  Checked %d device entries\n", report.Entries)
	return nil
}

func validateDefinitionFiles(manager config.Provider) error {
	path, err := manager.GetString("mib.definition_file")
	if err != nil || path == "" {
		return fmt.Errorf("mib.definition_file not found in configuration")
	}

	report, err := validator.ValidateDefinitionFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if !report.Valid() {
		for _, problem := range report.Problems {
			fmt.Printf("  %s: %s\n", path, problem.Error())
		}
		return fmt.Errorf("%d problem(s) found in %s", len(report.Problems), path)
	}

	fmt.Printf("  Checked %d definitions in %s\n", report.Entries, path)
	return nil
}
