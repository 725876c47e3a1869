package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/sale"
	"github.com/devblac/salewatch/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagExportFormat   string
	flagExportOut      string
	flagExportProvider string
	flagExportNFT      string
	flagExportFrom     uint64
	flagExportTo       uint64
	flagExportLimit    int
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "csv", "Output format: csv or json")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&flagExportProvider, "provider", "", "Only sales of this provider name")
	exportCmd.Flags().StringVar(&flagExportNFT, "nft", "", "Only sales of this NFT contract")
	exportCmd.Flags().Uint64Var(&flagExportFrom, "from", 0, "First block (inclusive)")
	exportCmd.Flags().Uint64Var(&flagExportTo, "to", 0, "Last block (inclusive)")
	exportCmd.Flags().IntVar(&flagExportLimit, "limit", 0, "Maximum number of sales")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored sales as csv or json",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		sales, err := store.ListSales(cmd.Context(), storage.SaleFilter{
			ProviderName: flagExportProvider,
			NFTContract:  flagExportNFT,
			FromBlock:    flagExportFrom,
			ToBlock:      flagExportTo,
			Limit:        flagExportLimit,
		})
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if flagExportOut != "" {
			f, err := os.Create(flagExportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", flagExportOut, err)
			}
			defer f.Close()
			out = f
		}
		return writeSales(out, flagExportFormat, sales)
	},
}

var csvHeader = []string{
	"provider_name", "provider_contract", "protocol", "nft_contract", "nft_id",
	"token", "token_symbol", "amount", "price", "price_usd",
	"seller", "buyer", "sold_at", "block_number", "transaction_hash",
}

func writeSales(w io.Writer, format string, sales []sale.SaleEntity) error {
	switch strings.ToLower(format) {
	case "json":
		rows := make([]map[string]any, 0, len(sales))
		for _, s := range sales {
			rows = append(rows, s.Fields())
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, s := range sales {
			usd := ""
			if s.PriceUSD != nil {
				usd = s.PriceUSD.String()
			}
			id := ""
			if s.NFTID != nil {
				id = s.NFTID.String()
			}
			if err := cw.Write([]string{
				s.ProviderName, s.ProviderContract, s.Protocol, s.NFTContract, id,
				s.Token, s.TokenSymbol, strconv.Itoa(s.Amount), s.Price.String(), usd,
				s.Seller, s.Buyer, s.SoldAtString(), strconv.FormatUint(s.BlockNumber, 10), s.TransactionHash,
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported format %q (want csv or json)", format)
	}
}
