package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	talktrek "github.com/talktrek/talktrek/sdk"
)

var (
	// Global flags
	cfgFile    string
	baseURL    string
	apiKey     string
	outputJSON bool
	verbose    bool

	// Global configuration
	globalConfig *FileConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "talktrek",
	Short: "Language practice CLI",
	Long: `TalkTrek CLI - voice-first language practice from your terminal.

This tool talks to a TalkTrek practice server to:
  - Browse missions, languages, and learning modes
  - Run interactive voice sessions with microphone capture and playback
  - Host the practice backend itself

Examples:
  # List available missions
  talktrek missions

  # Practice ordering coffee in Spanish
  talktrek talk --mission cafe-order --language Spanish

  # Run the backend locally
  talktrek serve
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.talktrek/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "practice server base URL (or TALKTREK_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the practice server (or TALKTREK_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	// .env is optional; environment wins over file config either way.
	_ = godotenv.Load()

	var err error
	globalConfig, err = LoadFileConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// resolveBaseURL returns the flag value, the environment, then the
// config file, in that order. Empty means the SDK default.
func resolveBaseURL() string {
	if baseURL != "" {
		return baseURL
	}
	if env := os.Getenv("TALKTREK_BASE_URL"); env != "" {
		return env
	}
	return globalConfig.BaseURL
}

func resolveAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	if env := os.Getenv("TALKTREK_API_KEY"); env != "" {
		return env
	}
	return globalConfig.APIKey
}

// newClient builds an SDK client from the resolved configuration.
func newClient() *talktrek.Client {
	var opts []talktrek.ClientOption
	if url := resolveBaseURL(); url != "" {
		printVerbose("using server %s", url)
		opts = append(opts, talktrek.WithBaseURL(url))
	}
	if key := resolveAPIKey(); key != "" {
		opts = append(opts, talktrek.WithAPIKey(key))
	}
	return talktrek.NewClient(opts...)
}
