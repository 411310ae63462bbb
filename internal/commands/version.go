package commands

import (
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

const defaultVersion = "dev"

// Populated via -ldflags at release build time.
var (
	Version        = defaultVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type versionInfo struct {
	Version        string `json:"version"`
	CommitHash     string `json:"commitHash,omitempty"`
	BuildTimestamp string `json:"buildTimestamp,omitempty"`
}

func NewVersionCommand(log logr.Logger) (*cobra.Command, error) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information.`,
		RunE:  getVersion(log),
		Args:  cobra.NoArgs,
	}

	return versionCmd, nil
}

func getVersion(log logr.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log = log.WithName("version")

		versionStr, err := versionString()
		if err != nil {
			log.Error(err, "Could not serialize version information")
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), versionStr)
		return nil
	}
}

func versionString() (string, error) {
	info := versionInfo{
		Version:        Version,
		CommitHash:     CommitHash,
		BuildTimestamp: BuildTimestamp,
	}
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
