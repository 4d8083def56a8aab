package clirelayer

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	relayercomponents "github.com/Ethernal-Tech/anchor-bridge-relayer/relayer_components"
	"github.com/spf13/cobra"
)

const (
	ExitCodeClean        = 0
	ExitCodeConfigError  = 1
	ExitCodeStartupError = 2
	ExitCodeInterrupt    = 130
)

var initParamsData = &initParams{}

func GetRunRelayerCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "runs the bridge relayer",
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	initParamsData.setFlags(runCmd)
	common.RegisterOutputterFlags(runCmd)

	return runCmd
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return initParamsData.validateFlags()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := common.InitializeOutputter(cmd)

	config, err := relayerconfig.LoadConfigDirs(initParamsData.configDirs)
	if err != nil {
		outputter.SetError(fmt.Errorf("config error: %w", err))
		outputter.WriteOutput()
		os.Exit(ExitCodeConfigError)
	}

	if initParamsData.tmpStore || config.StorePath == "" {
		tmpDir, err := os.MkdirTemp("", "anchor-relayer-store-")
		if err != nil {
			outputter.SetError(err)
			outputter.WriteOutput()
			os.Exit(ExitCodeStartupError)
		}

		defer common.RemoveDirOrFilePathIfExists(tmpDir) //nolint:errcheck

		config.StorePath = filepath.Join(tmpDir, "relayer.db")
	}

	logger, err := common.NewLogger(common.LoggerConfig{
		Name:        "anchor-relayer",
		LogLevel:    initParamsData.logLevel(),
		LogFilePath: config.Logger.LogFilePath,
		JSONFormat:  config.Logger.JSONFormat,
	})
	if err != nil {
		outputter.SetError(err)
		outputter.WriteOutput()
		os.Exit(ExitCodeStartupError)
	}

	components, err := relayercomponents.NewRelayerComponents(config, logger)
	if err != nil {
		outputter.SetError(fmt.Errorf("startup error: %w", err))
		outputter.WriteOutput()
		os.Exit(ExitCodeStartupError)
	}

	if err := components.Start(); err != nil {
		outputter.SetError(fmt.Errorf("startup error: %w", err))
		outputter.WriteOutput()
		os.Exit(ExitCodeStartupError)
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	received := <-signalChannel

	logger.Info("shutting down", "signal", received.String())

	if err := components.Stop(); err != nil {
		logger.Error("error during shutdown", "err", err)
	}

	outputter.SetCommandResult(&CmdResult{})
	outputter.WriteOutput()

	if received == os.Interrupt {
		os.Exit(ExitCodeInterrupt)
	}
}
