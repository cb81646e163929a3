package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// FileConfig is the on-disk CLI configuration.
type FileConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`

	path string
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".talktrek", "config.yaml"), nil
}

// LoadFileConfig reads the config file at path, or the default location
// when path is empty. A missing file yields an empty config.
func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := &FileConfig{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back to the file it was loaded from.
func (c *FileConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration.

Configuration is stored in ~/.talktrek/config.yaml`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputJSON {
			return printJSON(globalConfig)
		}
		fmt.Printf("config file: %s\n", globalConfig.path)
		fmt.Printf("base_url:    %s\n", valueOr(globalConfig.BaseURL, "(default)"))
		fmt.Printf("api_key:     %s\n", maskKey(globalConfig.APIKey))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and write it back to the config file.

Keys:
  base-url  - practice server base URL
  api-key   - API key sent as a bearer token

Example:
  talktrek config set base-url https://practice.example.com`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		switch key {
		case "base-url":
			globalConfig.BaseURL = value
		case "api-key":
			globalConfig.APIKey = value
		default:
			return fmt.Errorf("unknown config key %q (expected base-url or api-key)", key)
		}
		if err := globalConfig.Save(); err != nil {
			return err
		}
		printSuccess("Updated %s in %s", key, globalConfig.path)
		return nil
	},
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}
