package main

import (
	"fmt"
	"net/http"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"roverscope/internal/api"
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Manage missions through the rover server's HTTP API",
}

// apiClient builds a client from the configured base URL and timeout.
func apiClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(&http.Client{Timeout: cfg.API.Timeout}, cfg.API.BaseURL), nil
}

var missionStartCmd = &cobra.Command{
	Use:   "start TASK DISTANCE_CM",
	Short: "Start a mission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		distance, err := strconv.Atoi(args[1])
		if err != nil || distance <= 0 {
			return fmt.Errorf("distance must be a positive number of centimetres, got %q", args[1])
		}
		c, err := apiClient()
		if err != nil {
			return err
		}
		res, err := c.StartMission(cmd.Context(), args[0], distance)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var missionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mission",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		res, err := c.StopMission(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	},
}

var missionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mission history",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		missions, err := c.Missions(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTASK\tSTATUS\tSTARTED")
		for _, m := range missions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Task, m.Status, m.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var missionReportCmd = &cobra.Command{
	Use:   "report MISSION_ID",
	Short: "Print a mission report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		report, err := c.Report(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(report)
		return err
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Save the current detection frame on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		res, err := c.Capture(cmd.Context())
		if err != nil {
			return err
		}
		for _, f := range res.Files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

func init() {
	missionCmd.AddCommand(missionStartCmd, missionStopCmd, missionListCmd, missionReportCmd, captureCmd)
}
