package cliversion

import (
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/versioning"
	"github.com/spf13/cobra"
)

func GetVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the current anchor-bridge-relayer version",
		Args:  cobra.NoArgs,
		Run:   runCommand,
	}

	common.RegisterOutputterFlags(cmd)

	return cmd
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := common.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	outputter.SetCommandResult(&versionCmdResult{
		Version:   versioning.Version,
		Commit:    versioning.Commit,
		Branch:    versioning.Branch,
		BuildTime: versioning.BuildTime,
	})
}

type versionCmdResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildTime string `json:"buildTime"`
}

var _ common.ICommandResult = (*versionCmdResult)(nil)

func (r versionCmdResult) GetOutput() string {
	return common.FormatKV([]string{
		"Version|" + r.Version,
		"Commit|" + r.Commit,
		"Branch|" + r.Branch,
		"Build Time|" + r.BuildTime,
	})
}
