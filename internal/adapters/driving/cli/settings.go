package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/strata-qda/strata-cli/internal/adapters/driven/ai"
	"github.com/strata-qda/strata-cli/internal/adapters/driven/config/file"
	"github.com/strata-qda/strata-cli/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the LLM provider, per-stage models and pipeline
options. Settings persist to the config file; environment variables
(STRATA_API_KEY and friends) override them at runtime.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set one configuration key. Known keys:

  llm.provider                  openai | anthropic | ollama
  llm.base_url                  endpoint override (e.g. https://api.deepseek.com)
  models.open_coding            model for open coding
  models.filtering              model for filtering
  models.axial_coding           model for axial coding
  models.selective_coding       model for selective coding
  models.storyline              model for the storyline
  pipeline.concurrency          concurrent model calls
  pipeline.filter_batch_size    records per filtering call
  pipeline.max_attempts         retries per model call
  pipeline.requests_per_second  outbound call pacing (0 disables)
  output.dir                    artifact root directory

Use 'strata settings set-key' for the API key.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Set the provider API key",
	Long:  `Reads the API key without echoing it and validates it against the provider.`,
	RunE:  runSettingsSetKey,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsSetKeyCmd)
	rootCmd.AddCommand(settingsCmd)
}

// settingKeys maps each settable key to how its value is parsed.
var settingKeys = map[string]func(string) (any, error){
	file.KeyProvider: func(v string) (any, error) {
		if !domain.AIProvider(v).IsValid() {
			return nil, fmt.Errorf("unknown provider %q (openai, anthropic or ollama)", v)
		}
		return v, nil
	},
	file.KeyBaseURL:           parseString,
	file.KeyOpenModel:         parseString,
	file.KeyFilterModel:       parseString,
	file.KeyAxialModel:        parseString,
	file.KeySelectiveModel:    parseString,
	file.KeyStorylineModel:    parseString,
	file.KeyOutputDir:         parseString,
	file.KeyConcurrency:       parsePositiveInt,
	file.KeyFilterBatchSize:   parsePositiveInt,
	file.KeyMaxAttempts:       parsePositiveInt,
	file.KeyRequestsPerSecond: parseNonNegativeFloat,
}

func parseString(v string) (any, error) {
	return v, nil
}

func parsePositiveInt(v string) (any, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("expected a positive integer, got %q", v)
	}
	return n, nil
}

func parseNonNegativeFloat(v string) (any, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, fmt.Errorf("expected a non-negative number, got %q", v)
	}
	return f, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("settings service not configured")
	}

	settings := file.LoadPipelineSettings(configStore)

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Provider]")
	cmd.Printf("  Provider: %s\n", settings.Provider.Description())
	if settings.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.BaseURL)
	}
	if settings.Provider.RequiresAPIKey() {
		if settings.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Println()

	cmd.Println("[Models]")
	for _, stage := range domain.Stages() {
		cmd.Printf("  %-16s %s\n", stage, settings.Models.ForStage(stage))
	}
	cmd.Println()

	cmd.Println("[Pipeline]")
	cmd.Printf("  Concurrency: %d\n", settings.Concurrency)
	cmd.Printf("  Filter batch size: %d\n", settings.FilterBatchSize)
	cmd.Printf("  Max attempts: %d\n", settings.MaxAttempts)
	cmd.Printf("  Requests per second: %g\n", settings.RequestsPerSecond)
	cmd.Printf("  Output directory: %s\n", settings.OutputDir)
	cmd.Println()

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("settings service not configured")
	}

	key, raw := args[0], args[1]
	parse, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (see 'strata settings set --help')", key)
	}

	value, err := parse(raw)
	if err != nil {
		return err
	}
	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}

	cmd.Printf("Set %s = %v\n", key, value)
	return nil
}

func runSettingsSetKey(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("settings service not configured")
	}

	cmd.Print("Enter API key: ")
	apiKey := readPassword()
	cmd.Println()
	if apiKey == "" {
		return errors.New("API key must not be empty")
	}

	if err := configStore.Set(file.KeyAPIKey, apiKey); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	settings := file.LoadPipelineSettings(configStore)
	cmd.Print("Validating configuration... ")
	if err := validateProviderConfig(settings); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		cmd.Println("The key was saved; fix the configuration and retry.")
		return nil
	}
	cmd.Println("OK")

	return nil
}

// validateProviderConfig pings the provider. Swapped in tests.
var validateProviderConfig = func(settings domain.PipelineSettings) error {
	return ai.ValidateConfig(settings)
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read the key without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
