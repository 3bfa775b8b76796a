package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run memory consolidation now",
	Long: `Run a full consolidation pass: abstract methodologies from recurring
recovery fragments, merge duplicate methodologies, refresh error pattern
frequencies, and remove low-confidence methodologies.`,
	RunE: runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	svc, logger, err := newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())
	defer logger.Sync() //nolint:errcheck

	stats := svc.Consolidate(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "methodologies created: %d\nnodes merged: %d\nnodes cleaned: %d\n",
		stats.MethodologiesCreated, stats.NodesMerged, stats.NodesCleaned)
	return nil
}
