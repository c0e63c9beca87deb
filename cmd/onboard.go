package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/haggle-go/internal/config"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/utils"
)

var onboardFormat string

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize haggle configuration and data directory",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
	onboardCmd.Flags().StringVar(&onboardFormat, "format", "json", "config file format: json, yaml or toml")
}

// onboardConfigPath picks the config file to create. An explicit --config
// wins; otherwise the default path gets the extension for --format.
func onboardConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	ext := strings.ToLower(onboardFormat)
	switch ext {
	case "json", "yaml", "toml":
	case "yml":
		ext = "yaml"
	default:
		return "", errors.Errorf("unsupported format %q", onboardFormat)
	}
	base := config.GetConfigPath()
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + ext, nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	path, err := onboardConfigPath()
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	dataDir, err := utils.EnsureDir(cfg.GetDataDir())
	if err != nil {
		return errors.Wrap(err, "creating data dir")
	}
	fmt.Printf("✓ Data directory at %s\n", dataDir)

	catPath := filepath.Join(dataDir, "categories.yaml")
	if _, err := os.Stat(catPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(listing.DefaultCategories())
		if err != nil {
			return errors.Wrap(err, "encoding categories")
		}
		if err := os.WriteFile(catPath, data, 0644); err != nil {
			return errors.Wrap(err, "writing categories")
		}
		fmt.Printf("  Created %s\n", filepath.Base(catPath))
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
	} else {
		cfg.Resolver.CategoryFile = catPath
		if err := config.Save(cfg, path); err != nil {
			return errors.Wrap(err, "creating config")
		}
		fmt.Printf("✓ Created config at %s\n", path)
	}

	fmt.Println("\nhaggle is ready!")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set GEMINI_API_KEY and ANTHROPIC_API_KEY, or add apiKey under llm in the config")
	fmt.Println("  2. Start the server: haggle serve")
	fmt.Println("  3. Create a session: POST /api/sessions {\"productReference\": \"<listing url>\"}")
	return nil
}
