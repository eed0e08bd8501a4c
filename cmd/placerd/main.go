package main

import (
	"fmt"
	"os"

	"github.com/adammck/placer/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "placerd",
		Short:        "Decides which data nodes should serve which segments",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to config file (default: ./placer.yaml, if present)")
	root.PersistentFlags().String("log_level", "info", "debug, info, warn, or error")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newSegmentsCmd())

	return root
}

// setup loads the config, with the flags of the given command bound over it,
// and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path, cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	return cfg, log, nil
}
