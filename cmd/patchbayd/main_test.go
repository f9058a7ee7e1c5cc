package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/patchbay-rpc/patchbay/cmd/patchbayd/commands"
	"github.com/patchbay-rpc/patchbay/codec"
	"github.com/patchbay-rpc/patchbay/node"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 2, exitCode(fmt.Errorf("%w: boom", commands.ErrRegistryInit)))
	require.Equal(t, 2, exitCode(node.ErrNoRegistry))
	require.Equal(t, 3, exitCode(fmt.Errorf("resolving codec: %w", codec.ErrUnknownCodec)))
	require.Equal(t, 1, exitCode(errors.New("boom")))
}
