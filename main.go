package main

import (
	"github.com/Ethernal-Tech/anchor-bridge-relayer/cli"
)

func main() {
	cli.NewRootCommand().Execute()
}
