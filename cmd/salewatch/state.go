package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/source/evm"
	"github.com/devblac/salewatch/internal/storage"
	"github.com/spf13/cobra"
)

var flagStateLag bool

func init() {
	stateCmd.Flags().BoolVar(&flagStateLag, "lag", false, "Query each adapter's RPC for the chain head and show lag")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show adapter cursors, lag and stored sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, err := store.ListCursors(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]storage.Cursor, len(cursors))
		for _, c := range cursors {
			byID[c.AdapterID] = c
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADAPTER\tPROTOCOL\tHEIGHT\tLAG\tUPDATED")
		for _, a := range cfg.Adapters {
			c, ok := byID[a.ID]
			height, updated := "-", "-"
			if ok {
				height = fmt.Sprintf("%d", c.Height)
				updated = c.UpdatedAt.UTC().Format(time.RFC3339)
			}
			lag := "-"
			if flagStateLag {
				lag = adapterLag(ctx, a, c.Height, ok)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Protocol, height, lag, updated)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		n, err := store.CountSales(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sales stored: %d\n", n)
		return nil
	},
}

func adapterLag(ctx context.Context, a config.Adapter, height uint64, hasCursor bool) string {
	ctx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	cli, err := evm.NewRPCClient(a.RPCURL)
	if err != nil {
		return "error"
	}
	defer cli.Close()
	head, err := cli.BlockNumber(ctx)
	if err != nil {
		return "error"
	}
	if !hasCursor || head < height {
		return fmt.Sprintf("head %d", head)
	}
	return fmt.Sprintf("%d", head-height)
}
