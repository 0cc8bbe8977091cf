package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "emgcap",
		Short:         "Surface EMG session capture",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Configuration file path")

	root.AddCommand(newRecordCmd(&configPath))
	root.AddCommand(newOperatorCmd(&configPath))
	root.AddCommand(newPortsCmd())
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}
