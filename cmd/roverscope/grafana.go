package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"roverscope/internal/grafana"
)

var grafanaOut string

var grafanaCmd = &cobra.Command{
	Use:   "grafana",
	Short: "Render Grafana dashboards for the recorded tables",
	Long:  "grafana renders dashboards querying the pose and hazard tables. GREPTIMEDB_DATASOURCE_UID must name the Grafana datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data := grafana.DefaultData()
		if cfg.Sink.PoseTable != "" {
			data.PoseTable = cfg.Sink.PoseTable
		}
		if cfg.Sink.HazardTable != "" {
			data.HazardTable = cfg.Sink.HazardTable
		}
		paths, err := grafana.Render(grafanaOut, data)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	grafanaCmd.Flags().StringVar(&grafanaOut, "out", "build", "Output directory")
}
