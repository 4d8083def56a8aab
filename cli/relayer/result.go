package clirelayer

import (
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
)

type CmdResult struct{}

var _ common.ICommandResult = (*CmdResult)(nil)

func (r CmdResult) GetOutput() string {
	return common.FormatKV([]string{
		"Status|relayer stopped cleanly",
	})
}
