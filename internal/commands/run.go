package commands

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/robcohen/peervault-sub002/internal/config"
	"github.com/robcohen/peervault-sub002/internal/harness"
)

type runFlags struct {
	configPath string
	suite      string
	sequential bool
	failFast   int
	fresh      bool
	restart    bool
	list       bool
}

func NewRunCommand(log logr.Logger) (*cobra.Command, error) {
	flags := &runFlags{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the test suites against both instances",
		Long: `Discovers both PeerVault debugging endpoints, connects to them, and runs
the test suites. Exits non-zero when any test fails.`,
		Args: cobra.NoArgs,
		RunE: runSuites(log, flags),
	}

	runCmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	runCmd.Flags().StringVarP(&flags.suite, "suite", "s", "", "Run only the named suite")
	runCmd.Flags().BoolVar(&flags.sequential, "sequential", false, "Run suites one after another sharing a single environment")
	runCmd.Flags().IntVar(&flags.failFast, "fail-fast", 0, "Abort after this many consecutive failures (0 disables)")
	runCmd.Flags().BoolVar(&flags.fresh, "fresh", false, "Remove fixture files left behind by earlier runs before testing")
	runCmd.Flags().BoolVar(&flags.restart, "restart", false, "Restart both instances before testing")
	runCmd.Flags().BoolVar(&flags.list, "list", false, "Only list the reachable targets, do not run any tests")

	return runCmd, nil
}

func runSuites(log logr.Logger, flags *runFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log = log.WithName("run")

		cfg, cfgErr := config.Load(flags.configPath)
		if cfgErr != nil {
			return fmt.Errorf("invalid configuration: %w", cfgErr)
		}
		if flags.list {
			return printEndpoints(cmd, cfg)
		}

		log.V(1).Info("Configuration loaded",
			"discoveryUrl", cfg.DiscoveryBaseURL(),
			"peerA", cfg.PeerAName,
			"peerB", cfg.PeerBName,
			"convergeTimeout", cfg.ConvergeTimeout.String(),
		)

		factory := harness.NewEnvFactory(cfg, log, harness.BuildEnvOptions{
			Restart: flags.restart,
			Fresh:   flags.fresh,
		})
		runner := harness.NewRunner(log, factory, harness.RunnerOptions{
			SuiteFilter: flags.suite,
			FailFast:    flags.failFast,
			Sequential:  flags.sequential,
		})

		summary, runErr := runner.Run(cmd.Context(), harness.AllSuites())
		if summary != nil {
			fmt.Fprint(cmd.OutOrStdout(), summary.Format())
		}
		return runErr
	}
}
