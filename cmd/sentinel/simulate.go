package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/sentinel/internal/simulator"
)

func newSimulateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Corre el simulador de verificación por etapas en la terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			r, err := simulator.New(cfg.Simulator.Stages, cfg.SimulatorDwell(), simulator.Options{
				OnChange: func(s simulator.Snapshot) {
					fmt.Fprintf(out, "%3d%%  %s\n", s.Progress, render(s.Stages))
				},
			})
			if err != nil {
				return err
			}

			r.Start(cmd.Context())
			snap, err := r.Wait(cmd.Context())
			if err != nil {
				r.Stop()
				return err
			}
			if snap.Done {
				fmt.Fprintln(out, "verification complete")
			}
			return nil
		},
	}
}

func render(stages []simulator.Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		mark := " "
		switch s.Status {
		case simulator.Active:
			mark = ">"
		case simulator.Completed:
			mark = "x"
		}
		parts[i] = fmt.Sprintf("[%s] %s", mark, s.Name)
	}
	return strings.Join(parts, "  ")
}
