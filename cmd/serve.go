// =============================================================================
// Claims Consolidator - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   consolidator serve [--addr :8080]
//
// Loads the registry and the expenses table once and serves the read-only
// query API until interrupted. The expenses table defaults to the enriched
// output of the last run.
//
// =============================================================================

package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/claims-consolidator/internal/api"
	"github.com/ginjaninja78/claims-consolidator/internal/pipeline"
)

// addr overrides server.addr.
var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over the registry and expenses",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _, err := newQueryServer(cmd.Context())
		if err != nil {
			return err
		}
		return server.ListenAndServe(cmd.Context())
	},
}

// newQueryServer loads the registry and the expenses table. The returned
// registry holds the runtime and HTTP metrics exposed on /metrics.
func newQueryServer(ctx context.Context) (*api.Server, *prometheus.Registry, error) {
	serverCfg := cfg.Server
	if addr != "" {
		serverCfg.Addr = addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Stage counters stay on the pipeline's private registry; serve runs no stage.
	p := pipeline.New(cfg, logger, nil)
	idx, err := p.LoadRegistry(ctx)
	if err != nil {
		return nil, nil, err
	}

	dataset := serverCfg.Dataset
	if dataset == "" {
		dataset = p.Files().OutputPath(pipeline.EnrichedFile)
	}
	expenses, err := api.LoadExpenses(dataset)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("dataset loaded", "path", dataset, "expenses", len(expenses), "filers", idx.Len())

	return api.NewServer(serverCfg, api.NewDataset(idx, expenses), logger, reg), reg, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(
		&addr,
		"addr",
		"",
		"Listen address (default server.addr)",
	)
}
