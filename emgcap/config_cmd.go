package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/itohio/emgcap/pkg/config"
	"github.com/itohio/emgcap/pkg/dsp"
)

// Frequencies at which 'config show' reports the filter response.
var probeFrequencies = []float64{1, 10, 50, 60, 100}

func newConfigCmd(configPath *string) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect or create the configuration file"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(*configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", *configPath)
			}
			if err := config.Default().Save(*configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", *configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and filter chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(data); err != nil {
				return err
			}
			return printFilterChain(w, cfg.Filter)
		},
	}

	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func printFilterChain(w io.Writer, cfg config.FilterConfig) error {
	engine, err := dsp.NewEngine(dsp.SpecFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	fmt.Fprintln(w, "\n# filter chain")
	for _, st := range engine.Stages() {
		fmt.Fprintf(w, "# %s:", st.Name)
		for _, f := range probeFrequencies {
			if f >= cfg.SampleRate/2 {
				continue
			}
			fmt.Fprintf(w, " |H(%g)|=%.3f", f, st.Coefficients.Response(f, cfg.SampleRate))
		}
		fmt.Fprintln(w)
	}
	return nil
}
