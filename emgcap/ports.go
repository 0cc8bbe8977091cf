package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/emgcap/pkg/device"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := device.Ports()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(w, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.Description != "" && p.Description != p.Name {
					fmt.Fprintf(w, "%s (%s)\n", p.Name, p.Description)
				} else {
					fmt.Fprintln(w, p.Name)
				}
			}
			return nil
		},
	}
}
