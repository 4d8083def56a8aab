package clirelayer

import (
	"errors"

	"github.com/spf13/cobra"
)

const (
	configDirFlag = "config-dir"
	tmpFlag       = "tmp"

	configDirFlagDesc = "path to a directory of config files (may repeat)"
	tmpFlagDesc       = "use a temporary store, discarded on exit"
)

type initParams struct {
	configDirs []string
	tmpStore   bool
	verbosity  int
}

func (ip *initParams) validateFlags() error {
	if len(ip.configDirs) == 0 {
		return errors.New("at least one --config-dir is required")
	}

	return nil
}

func (ip *initParams) setFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(
		&ip.configDirs,
		configDirFlag,
		nil,
		configDirFlagDesc,
	)
	cmd.Flags().BoolVar(
		&ip.tmpStore,
		tmpFlag,
		false,
		tmpFlagDesc,
	)
	cmd.Flags().CountVarP(
		&ip.verbosity,
		"verbose",
		"v",
		"increase log verbosity (-v, -vv, -vvv)",
	)
}

func (ip *initParams) logLevel() string {
	switch ip.verbosity {
	case 0:
		return "info"
	case 1:
		return "debug"
	default:
		return "trace"
	}
}
