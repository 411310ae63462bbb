package commands

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/robcohen/peervault-sub002/internal/config"
	"github.com/robcohen/peervault-sub002/pkg/devtool"
)

func NewDiscoverCommand(log logr.Logger) (*cobra.Command, error) {
	var configPath string

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Lists the PeerVault debugging endpoints currently reachable",
		Long: `Queries the debugging discovery endpoint and prints the PeerVault targets
it exposes, one per line. Useful to verify both instances are up before a run.`,
		Args: cobra.NoArgs,
		RunE: listEndpoints(log, &configPath),
	}

	discoverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	return discoverCmd, nil
}

func listEndpoints(log logr.Logger, configPath *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log = log.WithName("discover")

		cfg, cfgErr := config.Load(*configPath)
		if cfgErr != nil {
			return fmt.Errorf("invalid configuration: %w", cfgErr)
		}

		return printEndpoints(cmd, cfg)
	}
}

func printEndpoints(cmd *cobra.Command, cfg config.Config) error {
	endpoints, discoverErr := devtool.Discover(cmd.Context(), cfg.DiscoveryBaseURL(), devtool.DiscoveryOptions{})
	if discoverErr != nil {
		return fmt.Errorf("discovery against %s failed: %w", cfg.DiscoveryBaseURL(), discoverErr)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no PeerVault targets found at %s", cfg.DiscoveryBaseURL())
	}

	for _, ep := range endpoints {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", ep.Name, ep.WebSocketURL, ep.Title)
	}
	return nil
}
