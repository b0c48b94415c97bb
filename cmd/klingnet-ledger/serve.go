package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingnet-ledger/internal/rpcclient"
)

// ── serve ───────────────────────────────────────────────────────────────

func newServeCmd(a *app) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the node with its JSON-RPC server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.cfg.RPC.Enabled = true
			n, err := a.openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Stop()

			if err := n.StartRPC(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "RPC listening on %s\n", n.RPCAddr())
			if mine {
				if err := n.Start(); err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "produce blocks continuously")
	return cmd
}

// ── rpc ─────────────────────────────────────────────────────────────────

func newRPCCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc <method> [params-json]",
		Short: "Call a JSON-RPC method on a running node",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params interface{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return fmt.Errorf("params: %w", err)
				}
			}

			client := rpcclient.New("http://" + a.cfg.RPC.Addr + "/")
			var result json.RawMessage
			if err := client.CallContext(cmd.Context(), args[0], params, &result); err != nil {
				return err
			}

			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			var pretty interface{}
			if err := json.Unmarshal(result, &pretty); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)
			return nil
		},
	}
}
