package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robcohen/peervault-sub002/pkg/logger"
)

var (
	rootCmdLogger      *logger.Logger
	rootCmdFlushLogger func()
)

func NewRootCmd() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "pvharness",
		Short: "Runs end-to-end tests against a pair of PeerVault instances",
		Long: `pvharness drives two running PeerVault instances over their debugging
endpoints and verifies that vault changes replicate between them.

Both instances must be started with remote debugging enabled before a run.`,
		SilenceUsage: true,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			rootCmdFlushLogger()
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmdLogger = logger.New("pvharness")
	rootCmdFlushLogger = rootCmdLogger.Flush
	rootCmdLogger.AddLevelFlag(rootCmd.PersistentFlags())

	var err error
	var cmd *cobra.Command

	if cmd, err = NewRunCommand(rootCmdLogger.Logger); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'run' command: %w", err)
	}

	if cmd, err = NewDiscoverCommand(rootCmdLogger.Logger); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'discover' command: %w", err)
	}

	if cmd, err = NewVersionCommand(rootCmdLogger.Logger); cmd != nil {
		rootCmd.AddCommand(cmd)
	} else {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	}

	return rootCmd, nil
}
