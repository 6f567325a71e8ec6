package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/korjavin/quizpilot/config"
	"github.com/korjavin/quizpilot/database"
)

var flagConfig string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quizpilot",
		Short:         "Answers live quiz questions in the browser and remembers what it learns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./config.yaml or ~/.config/quizpilot/config.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newMemoryCmd())

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// openMemory loads the config and opens the answer memory it points at
func openMemory() (*database.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return database.New(cfg.Database.Path)
}
