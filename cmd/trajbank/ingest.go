package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest trajectory JSON files into memory",
	Long: `Ingest one or more completed trajectories. Each file holds a single
trajectory as JSON with task, steps, success, and optional repo fields.

Examples:
  # Ingest a trajectory file
  trajbank ingest run1.json

  # Ingest several files
  trajbank ingest runs/*.json

  # Ingest from stdin
  cat run.json | trajbank ingest -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, logger, err := newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())
	defer logger.Sync() //nolint:errcheck

	for _, arg := range args {
		raw, err := readTrajectory(arg)
		if err != nil {
			return err
		}

		id, err := svc.Learn(cmd.Context(), raw)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", arg, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arg, id)
	}
	return nil
}

func readTrajectory(path string) (*memory.RawTrajectory, error) {
	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	var raw memory.RawTrajectory
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &raw, nil
}
