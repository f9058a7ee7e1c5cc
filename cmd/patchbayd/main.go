package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/patchbay-rpc/patchbay/cmd/patchbayd/commands"
	"github.com/patchbay-rpc/patchbay/codec"
	cfg "github.com/patchbay-rpc/patchbay/config"
	"github.com/patchbay-rpc/patchbay/libs/cli"
	"github.com/patchbay-rpc/patchbay/node"
)

func main() {
	rootCmd := commands.RootCmd
	rootCmd.AddCommand(
		commands.InitFilesCmd,
		commands.StartCmd,
		commands.VersionCmd,
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "PB", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultPatchbayDir)))
	if err := baseCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps startup failures to distinct codes: a broken registry is 2,
// an unknown codec is 3, anything else 1.
func exitCode(err error) int {
	switch {
	case errors.Is(err, commands.ErrRegistryInit), errors.Is(err, node.ErrNoRegistry):
		return 2
	case errors.Is(err, codec.ErrUnknownCodec):
		return 3
	}
	return 1
}
