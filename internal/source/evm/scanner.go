package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/sale"
	"github.com/devblac/salewatch/internal/storage"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// BlockClient captures the subset of ethclient used by the scanner.
type BlockClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// HeaderReader fetches block headers.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// RawCaller issues raw JSON-RPC calls.
type RawCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies BlockClient.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// ChainReader returns the sale.Chain view of the client.
func (c *RPCClient) ChainReader() *ChainReader {
	return NewChainReader(c.Client, c.Client.Client())
}

// ChainReader implements sale.Chain over an EVM node.
type ChainReader struct {
	headers HeaderReader
	rpc     RawCaller
}

// NewChainReader builds a ChainReader from a header source and a raw RPC caller.
func NewChainReader(headers HeaderReader, rpc RawCaller) *ChainReader {
	return &ChainReader{headers: headers, rpc: rpc}
}

// BlockTimestamp returns the consensus timestamp of block number.
func (r *ChainReader) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	h, err := r.headers.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	return h.Time, nil
}

// TransactionReceipt fetches a receipt. The raw call is used because the
// typed receipt in go-ethereum does not carry the sender.
func (r *ChainReader) TransactionReceipt(ctx context.Context, txHash string) (*sale.Receipt, error) {
	var raw struct {
		TxHash common.Hash     `json:"transactionHash"`
		From   *common.Address `json:"from"`
	}
	if err := r.rpc.CallContext(ctx, &raw, "eth_getTransactionReceipt", common.HexToHash(txHash)); err != nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	if raw.From == nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash, ethereum.NotFound)
	}
	return &sale.Receipt{
		TxHash: strings.ToLower(raw.TxHash.Hex()),
		From:   strings.ToLower(raw.From.Hex()),
	}, nil
}

// Scanner walks an adapter's contract logs in block ranges.
type Scanner struct {
	client        BlockClient
	store         *storage.Store
	adapter       config.Adapter
	confirmations uint64
	matcher       *FillMatcher
	stopAt        uint64

	// pos is the last handled height once a batch was committed or advanced.
	pos    uint64
	hasPos bool
	done   bool
}

// NewScanner builds a scanner for an adapter.
func NewScanner(client BlockClient, store *storage.Store, adapter config.Adapter, confirmations uint64, matcher *FillMatcher) (*Scanner, error) {
	if client == nil || store == nil || matcher == nil {
		return nil, fmt.Errorf("adapter %s: client, store and matcher are required", adapter.ID)
	}
	return &Scanner{
		client:        client,
		store:         store,
		adapter:       adapter,
		confirmations: confirmations,
		matcher:       matcher,
	}, nil
}

// AdapterID returns the id of the scanned adapter.
func (s *Scanner) AdapterID() string { return s.adapter.ID }

// StopAt bounds scanning at height (inclusive). Zero means unbounded.
func (s *Scanner) StopAt(height uint64) { s.stopAt = height }

// Done reports whether the scanner has handled every block up to its StopAt height.
func (s *Scanner) Done() bool { return s.done }

// Next returns the next unscanned range with its decoded fills, or nil when
// the scanner is caught up. The position only moves on Commit or Advance.
func (s *Scanner) Next(ctx context.Context) (*Batch, error) {
	curHeight, hasCursor := s.pos, s.hasPos
	if !hasCursor {
		var err error
		curHeight, hasCursor, err = s.store.GetCursor(ctx, s.adapter.ID)
		if err != nil {
			return nil, err
		}
	}
	if hasCursor && s.stopAt > 0 && curHeight >= s.stopAt {
		s.done = true
		return nil, nil
	}

	latest, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	safeHeight := latest.Number.Uint64()
	if s.confirmations > 0 {
		if s.confirmations > safeHeight {
			return nil, nil
		}
		safeHeight -= s.confirmations
	}
	if s.stopAt > 0 && s.stopAt < safeHeight {
		safeHeight = s.stopAt
	}

	from := curHeight + 1
	if !hasCursor {
		start, err := resolveStartHeight(s.adapter.StartBlock, safeHeight)
		if err != nil {
			return nil, err
		}
		from = start
	}
	if s.stopAt > 0 && from > s.stopAt {
		s.done = true
		return nil, nil
	}
	if from > safeHeight {
		return nil, nil
	}

	span := s.adapter.Range
	if span == 0 {
		span = config.DefaultRange
	}
	to := from + span - 1
	if to > safeHeight {
		to = safeHeight
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.matcher.Address()},
		Topics:    [][]common.Hash{{s.matcher.Topic()}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	batch := &Batch{AdapterID: s.adapter.ID, From: from, To: to}
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, ok, err := s.matcher.Match(lg)
		if err != nil {
			batch.Undecodable = append(batch.Undecodable, err)
			continue
		}
		if !ok {
			continue
		}
		batch.Events = append(batch.Events, *ev)
	}
	sort.SliceStable(batch.Events, func(i, j int) bool {
		a, b := batch.Events[i], batch.Events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
	return batch, nil
}

// Commit records that every block of b was handled.
func (s *Scanner) Commit(ctx context.Context, b *Batch) error {
	if b == nil {
		return nil
	}
	if err := s.store.UpsertCursor(ctx, s.adapter.ID, b.To); err != nil {
		return err
	}
	s.Advance(b)
	return nil
}

// Advance moves past b for this process only; the stored cursor is untouched.
func (s *Scanner) Advance(b *Batch) {
	if b == nil {
		return
	}
	s.pos, s.hasPos = b.To, true
}

func resolveStartHeight(start string, safeHeight uint64) (uint64, error) {
	if start == "" || start == "0" {
		return 0, nil
	}
	if strings.HasPrefix(start, "latest-") {
		offsetStr := strings.TrimPrefix(start, "latest-")
		n, err := strconv.ParseUint(offsetStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse start_block %q: %w", start, err)
		}
		if n > safeHeight {
			return 0, nil
		}
		return safeHeight - n, nil
	}

	n, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse start_block %q: %w", start, err)
	}
	return n, nil
}
