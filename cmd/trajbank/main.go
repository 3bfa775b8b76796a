// Package main implements the trajbank CLI for trajectory memory operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trajbank/internal/bank"
	"github.com/fyrsmithlabs/trajbank/internal/config"
	"github.com/fyrsmithlabs/trajbank/internal/embeddings"
	"github.com/fyrsmithlabs/trajbank/internal/graph"
	"github.com/fyrsmithlabs/trajbank/internal/logging"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trajbank",
	Short: "Trajectory memory for coding agents",
	Long: `trajbank ingests agent trajectories into a graph memory, retrieves
relevant past experience, and consolidates recurring fixes into reusable
methodologies.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(statsCmd)
}

// newService wires config, logger, store, and embedder into a Service.
// An empty neo4j.uri yields a service without a store (offline mode).
func newService(cmd *cobra.Command) (*bank.Service, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	var store graph.Store
	if cfg.Neo4j.URI != "" {
		s, err := graph.NewNeo4jStore(cfg.Neo4j, logger.Named("graph"))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to neo4j: %w", err)
		}
		store = s
	}

	embedder, err := embeddings.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	opts := []bank.Option{}
	if cfg.Memory.ConsolidateEvery > 0 {
		opts = append(opts, bank.WithConsolidationPolicy(bank.NewEveryN(cfg.Memory.ConsolidateEvery)))
	}
	if cfg.Memory.TopK > 0 {
		opts = append(opts, bank.WithTopK(cfg.Memory.TopK))
	}
	if cfg.Memory.LoopMinRepeat > 0 {
		opts = append(opts, bank.WithLoopMinRepeat(cfg.Memory.LoopMinRepeat))
	}

	svc := bank.NewService(store, embedder, logger, opts...)
	if err := svc.InitSchema(cmd.Context()); err != nil {
		return nil, nil, fmt.Errorf("initializing schema: %w", err)
	}
	return svc, logger, nil
}
