package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored memory counts",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, logger, err := newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())
	defer logger.Sync() //nolint:errcheck

	stats := svc.Stats(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "trajectories: %d\nmethodologies: %d\n",
		stats.TotalTrajectories, stats.TotalMethodologies)
	return nil
}
