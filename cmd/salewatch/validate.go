package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/sink"
	"github.com/devblac/salewatch/internal/source/evm"
	"github.com/spf13/cobra"
)

const defaultHTTPTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, ABIs and sink filters, then ping RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		for _, s := range cfg.Sinks {
			if _, err := sink.CompilePredicates(s.Where); err != nil {
				return fmt.Errorf("sink %s where: %w", s.ID, err)
			}
		}

		client := &http.Client{Timeout: defaultHTTPTimeout}
		failures := 0

		for _, a := range cfg.Adapters {
			parsed, err := evm.LoadABI(a.ABIPath)
			if err == nil {
				_, err = evm.NewFillMatcher(a.Contract, parsed)
			}
			if err != nil {
				failures++
				fmt.Fprintf(out, "- adapter %s: ABI ERROR %v\n", a.ID, err)
				continue
			}

			chainID, err := pingEVM(cmd.Context(), client, a.RPCURL)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- adapter %s (%s): ERROR %v\n", a.ID, a.Protocol, err)
				continue
			}
			fmt.Fprintf(out, "- adapter %s (%s): chainId %s OK\n", a.ID, a.Protocol, chainID)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d adapter(s) failed", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingEVM(ctx context.Context, client *http.Client, url string) (string, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_chainId",
		"params":  []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call eth_chainId: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chainId result")
	}

	return rpcResp.Result, nil
}
