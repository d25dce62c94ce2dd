// Package cli implements the strata command-line interface.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strata-qda/strata-cli/internal/adapters/driven/config/file"
	"github.com/strata-qda/strata-cli/internal/adapters/driven/storage/sqlite"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose   bool
	configDir string
)

// Package-level services, wired by initServices on first use. Tests
// substitute their own instances before executing commands.
var (
	configStore driven.ConfigStore
	promptStore driven.PromptStore
	runStore    driven.RunStore
	closeStores func()
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "LLM-assisted grounded theory coding for interview transcripts",
	Long: `Strata runs a five-stage grounded theory coding pipeline over
interview transcripts: open coding, relevance filtering, axial coding,
selective coding and a final storyline. Every derived code, category and
concept is anchored to the source records that evidence it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if configStore != nil {
			return nil // already wired
		}
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.strata)")
}

// initServices builds the production stores from the config directory.
func initServices() error {
	cs, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("initialising config store: %w", err)
	}
	configStore = cs

	promptDir := ""
	if configDir != "" {
		promptDir = filepath.Join(configDir, "prompts")
	}
	ps, err := file.NewPromptStore(promptDir)
	if err != nil {
		return fmt.Errorf("initialising prompt store: %w", err)
	}
	promptStore = ps

	dataDir := ""
	if configDir != "" {
		dataDir = filepath.Join(configDir, "data")
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("initialising run store: %w", err)
	}
	runStore = store.RunStore()
	closeStores = func() {
		store.Close() //nolint:errcheck // best-effort shutdown
	}

	return nil
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	defer func() {
		if closeStores != nil {
			closeStores()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
