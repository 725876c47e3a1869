package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagInitForce bool

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite existing files")
}

const sampleConfig = `version: 1

global:
  db_path: salewatch.db
  confirmations: 12

services:
  symbol_url: ${SYMBOL_SERVICE_URL}
  price_url: ${PRICE_SERVICE_URL}
  api_key: ${PRICE_SERVICE_KEY}
  rate_per_sec: 10
  # redis:
  #   addr: localhost:6379
  tokens:
    - protocol: ethereum
      address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
      symbol: USDC
      decimals: 6

adapters:
  - id: ghostmarket-ethereum
    name: ghostmarket-ethereum
    protocol: ethereum
    rpc_url: ${ETHEREUM_RPC_URL}
    contract: "0xfb2f452639cbb0850b46b20d24de7b0a9ccb665f"
    start_block: "16579834"
    range: 500
    chunk_size: 6
    native_token: "0x0000000000000000000000000000000000000000"
    proxies:
      - "0x2debb6ced142197bec08d76d3ecce828b3b261ee"

  - id: ghostmarket-polygon
    name: ghostmarket-polygon
    protocol: matic
    rpc_url: ${POLYGON_RPC_URL}
    contract: "0x3b48563237c32a1f886fd19db6f5affd23855e2a"
    start_block: "39033114"
    range: 500
    chunk_size: 6
    native_token: matic
    proxies:
      - "0x09236d6b740ac67dca842d9db6fa4d067a684e76"

sinks:
  - id: db
    type: store
  - id: console
    type: log
  # - id: big-sales
  #   type: slack
  #   webhook_url: https://hooks.slack.com/services/T000/B000/XXXX
  #   where: ["price_usd > 1000"]
`

const sampleEnv = `ETHEREUM_RPC_URL=https://eth.example/rpc
POLYGON_RPC_URL=https://polygon.example/rpc
SYMBOL_SERVICE_URL=https://tokens.example
PRICE_SERVICE_URL=https://prices.example
PRICE_SERVICE_KEY=
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a sample config with the stock marketplace adapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := filepath.Dir(cfgPath)
		files := []struct {
			path, body string
		}{
			{cfgPath, sampleConfig},
			{filepath.Join(dir, ".env.example"), sampleEnv},
		}
		for _, f := range files {
			if err := writeScaffold(f.path, f.body, flagInitForce); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", f.path)
		}
		return nil
	},
}

func writeScaffold(path, body string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(body), 0o644)
}
