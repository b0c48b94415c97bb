package main

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/node"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ── init ────────────────────────────────────────────────────────────────

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and seal the genesis block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureDataDirs(a.cfg); err != nil {
				return err
			}
			path := a.cfgFile
			if path == "" {
				path = a.cfg.ConfigFile()
			}
			if err := config.WriteDefaultConfig(path, a.cfg.Network); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			n, err := a.openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer n.Stop()

			genesis, err := n.Chain().BlockAt(1)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:   %s\n", path)
			fmt.Fprintf(out, "Chain:    %s\n", n.Genesis().ChainID)
			fmt.Fprintf(out, "Genesis:  %s\n", genesis.Hash(true))
			return nil
		},
	}
}

// ── mine ────────────────────────────────────────────────────────────────

func newMineCmd(a *app) *cobra.Command {
	var (
		txFile string
		blocks int
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine blocks, optionally including transfers from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := a.openNode(ctx)
			if err != nil {
				return err
			}
			defer n.Stop()

			if txFile != "" {
				txs, err := node.LoadTransactions(txFile)
				if err != nil {
					return err
				}
				for _, t := range txs {
					if _, err := n.SubmitTx(t); err != nil {
						return fmt.Errorf("submit %s: %w", t.ID(), err)
					}
				}
			}

			out := cmd.OutOrStdout()
			for i := 0; blocks <= 0 || i < blocks; i++ {
				blk, rejected, err := n.MineBlock(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Fprintf(out, "Block %d  %s  txs=%d\n", blk.ChainLength(), blk.Hash(true), blk.TxCount())
				for _, r := range rejected {
					fmt.Fprintf(out, "  rejected %s: %v\n", r.ID, r.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&txFile, "tx", "", "JSON file with one transaction or an array of them")
	cmd.Flags().IntVar(&blocks, "blocks", 1, "number of blocks to mine (0 mines until interrupted)")
	return cmd
}

// ── tx ──────────────────────────────────────────────────────────────────

func newTxCmd(a *app) *cobra.Command {
	var coinbase bool
	cmd := &cobra.Command{
		Use:   "tx [from] <to=amount>...",
		Short: "Print a transaction and its id for use with mine --tx",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := buildTx(args, coinbase)
			if err != nil {
				return err
			}
			if err := t.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", t.Bytes())
			fmt.Fprintf(out, "ID: %s\n", t.ID())
			return nil
		},
	}
	cmd.Flags().BoolVar(&coinbase, "coinbase", false, "build a coinbase (no sender)")
	return cmd
}

// buildTx parses "from to=amount..." or, for a coinbase, "to=amount...".
func buildTx(args []string, coinbase bool) (*tx.Transaction, error) {
	from := ""
	if !coinbase {
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: tx <from> <to=amount>...")
		}
		from, args = args[0], args[1:]
	}

	outputs := make(map[string]int64, len(args))
	for _, arg := range args {
		to, amt, ok := strings.Cut(arg, "=")
		if !ok || to == "" {
			return nil, fmt.Errorf("output %q: want <to>=<amount>", arg)
		}
		v, err := strconv.ParseInt(amt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", arg, err)
		}
		if _, dup := outputs[to]; dup {
			return nil, fmt.Errorf("output %q: duplicate recipient", arg)
		}
		outputs[to] = v
	}

	if coinbase {
		return tx.NewCoinbase(outputs), nil
	}
	return tx.NewTransfer(from, outputs), nil
}

// ── balance ─────────────────────────────────────────────────────────────

func newBalanceCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account balance at the tip or at a given block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer n.Stop()

			var bal int64
			if at == "" {
				bal, err = n.Chain().Balance(args[0])
			} else {
				blk, lerr := lookupBlock(n.Chain(), at)
				if lerr != nil {
					return lerr
				}
				bal, err = n.Chain().BalanceAt(blk.Hash(true), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], bal)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "block hash or length (default tip)")
	return cmd
}

// ── block ───────────────────────────────────────────────────────────────

func newBlockCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "block [hash|length]",
		Short: "Show a block (default tip)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer n.Stop()

			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			blk, err := lookupBlock(n.Chain(), ref)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintf(out, "%s\n", blk.Serialize(true))
				return nil
			}
			printBlock(out, blk)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the canonical block encoding")
	return cmd
}

// lookupBlock resolves a chain length, a block hash, a transaction id, or
// the tip when ref is empty.
func lookupBlock(ch *chain.Chain, ref string) (*block.Block, error) {
	if ref == "" {
		if tip := ch.Tip(); tip != nil {
			return tip, nil
		}
		return nil, chain.ErrBlockNotFound
	}
	if length, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return ch.BlockAt(length)
	}
	h, err := types.HexToHash(ref)
	if err != nil {
		return nil, fmt.Errorf("block %q: want a length or a hash", ref)
	}
	blk, err := ch.Block(h)
	if err == nil {
		return blk, nil
	}
	if txBlk, txErr := ch.TxBlock(h); txErr == nil {
		return txBlk, nil
	}
	return nil, err
}

func printBlock(w io.Writer, blk *block.Block) {
	fmt.Fprintf(w, "Length:       %d\n", blk.ChainLength())
	fmt.Fprintf(w, "Hash:         %s\n", blk.Hash(true))
	if prev, ok := blk.PrevBlockHash(); ok {
		fmt.Fprintf(w, "Prev:         %s\n", prev)
	} else {
		fmt.Fprintf(w, "Prev:         (genesis)\n")
	}
	ts := time.UnixMilli(blk.Timestamp()).UTC()
	fmt.Fprintf(w, "Timestamp:    %s\n", ts.Format("2006-01-02 15:04:05.000 UTC"))
	fmt.Fprintf(w, "Target:       %s\n", blk.Target().Hex())
	fmt.Fprintf(w, "Proof:        %d\n", blk.Proof())
	if c := blk.Comment(); c != "" {
		fmt.Fprintf(w, "Comment:      %s\n", c)
	}
	fmt.Fprintf(w, "Transactions: %d\n", blk.TxCount())
	for _, id := range blk.TransactionIDs() {
		fmt.Fprintf(w, "  %s\n", id)
	}
	fmt.Fprintf(w, "Balances:\n")
	l := blk.Ledger()
	for _, account := range l.Accounts() {
		fmt.Fprintf(w, "  %-20s %d\n", account, l.Balance(account))
	}
}

// ── verify ──────────────────────────────────────────────────────────────

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [hash|length]",
		Short: "Check a block's proof of work (default tip)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer n.Stop()

			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			blk, err := lookupBlock(n.Chain(), ref)
			if err != nil {
				return err
			}
			if err := n.VerifyBlock(blk); err != nil {
				return fmt.Errorf("block %d: %w", blk.ChainLength(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Block %d %s: proof ok\n", blk.ChainLength(), blk.Hash(true))
			return nil
		},
	}
}

// ── status ──────────────────────────────────────────────────────────────

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show network, chain length and tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.openNode(cmd.Context())
			if err != nil {
				return err
			}
			defer n.Stop()

			st := n.Chain().State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chain:    %s\n", n.Genesis().ChainID)
			fmt.Fprintf(out, "Network:  %s\n", a.cfg.Network)
			fmt.Fprintf(out, "Backend:  %s\n", a.cfg.Storage.Backend)
			fmt.Fprintf(out, "Length:   %d\n", st.Length)
			fmt.Fprintf(out, "Tip:      %s\n", st.TipHash)
			return nil
		},
	}
}
