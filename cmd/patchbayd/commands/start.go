package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patchbay-rpc/patchbay/internal/demo"
	"github.com/patchbay-rpc/patchbay/node"
)

// ErrRegistryInit tags registry construction failures so main can map them
// to their own exit code.
var ErrRegistryInit = errors.New("registry initialization failed")

// StartCmd runs the gateway until it is interrupted.
var StartCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"node", "run"},
	Short:   "Run the patchbay gateway",
	RunE:    startGateway,
}

func init() {
	registerFlagsStartCmd(StartCmd)
}

func registerFlagsStartCmd(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address. Port required")
	cmd.Flags().String("rpc.codec", config.RPC.Codec, "default codec (json | cbor)")
	cmd.Flags().Bool("static.enabled", config.Static.Enabled, "serve static files beside the RPC endpoint")
}

func startGateway(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := demo.Registry()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryInit, err)
	}

	n, err := node.New(config, logger, reg)
	if err != nil {
		return err
	}

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	// Block until SIGINT or SIGTERM. The canceled context stops the node;
	// Wait returns once the servers have drained.
	<-ctx.Done()

	logger.Info("shutting down")
	n.Wait()

	return nil
}
