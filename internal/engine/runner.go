// Package engine drives adapters: scan a block range, normalize its fills and
// hand the sales to the sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/devblac/salewatch/internal/metrics"
	"github.com/devblac/salewatch/internal/sale"
	"github.com/devblac/salewatch/internal/source/evm"
	"golang.org/x/sync/errgroup"
)

// BatchSource yields block ranges of decoded fills for one adapter.
type BatchSource interface {
	AdapterID() string
	Next(ctx context.Context) (*evm.Batch, error)
	// Commit persists progress past b; Advance moves past b in memory only.
	Commit(ctx context.Context, b *evm.Batch) error
	Advance(b *evm.Batch)
	// Done reports that a bounded source has nothing left to scan.
	Done() bool
}

// Processor turns a fill into a sale.
type Processor interface {
	Process(ctx context.Context, ev sale.OrderFillEvent) (sale.SaleEntity, error)
}

// Pipeline is one adapter's scanner and engine.
type Pipeline struct {
	Source    BatchSource
	Engine    Processor
	ChunkSize int
}

// Runner advances every pipeline by one batch per tick.
type Runner struct {
	pipelines []Pipeline
	sink      sale.Sink
	metrics   *metrics.Metrics
	log       *slog.Logger
	dryRun    bool
}

// NewRunner builds a runner. In dry-run mode sales are logged, not saved, and
// no cursor is persisted. mtr may be nil.
func NewRunner(pipelines []Pipeline, sink sale.Sink, mtr *metrics.Metrics, log *slog.Logger, dryRun bool) (*Runner, error) {
	if len(pipelines) == 0 {
		return nil, errors.New("runner: no pipelines")
	}
	if sink == nil && !dryRun {
		return nil, errors.New("runner: sink required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		pipelines: pipelines,
		sink:      sink,
		metrics:   mtr,
		log:       log,
		dryRun:    dryRun,
	}, nil
}

// RunOnce processes the next batch of every pipeline and returns the number of
// blocks committed. A failing pipeline does not stop the others; its batch is
// retried on the next tick.
func (r *Runner) RunOnce(ctx context.Context) (uint64, error) {
	var (
		scanned uint64
		errs    []error
	)
	for _, p := range r.pipelines {
		n, err := r.step(ctx, p)
		if err != nil {
			r.metrics.Errors()
			errs = append(errs, fmt.Errorf("adapter %s: %w", p.Source.AdapterID(), err))
			continue
		}
		scanned += n
	}
	return scanned, errors.Join(errs...)
}

// Done reports whether every pipeline has reached its stop height.
func (r *Runner) Done() bool {
	for _, p := range r.pipelines {
		if !p.Source.Done() {
			return false
		}
	}
	return true
}

type outcome struct {
	sale sale.SaleEntity
	err  error
}

func (r *Runner) step(ctx context.Context, p Pipeline) (uint64, error) {
	b, err := p.Source.Next(ctx)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, nil
	}
	log := r.log.With("adapter", b.AdapterID)

	for _, err := range b.Undecodable {
		r.metrics.DecodeErrors()
		log.Warn("skipping undecodable fill", "error", err)
	}

	results := make([]outcome, len(b.Events))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.ChunkSize
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, ev := range b.Events {
		i, ev := i, ev
		g.Go(func() error {
			s, err := p.Engine.Process(gctx, ev)
			if err != nil {
				if sale.IsDecodeError(err) {
					results[i].err = err
					return nil
				}
				return err
			}
			results[i].sale = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("blocks %d-%d: %w", b.From, b.To, err)
	}

	// Sales leave in (block, log index) order regardless of completion order.
	for i, res := range results {
		if res.err != nil {
			r.metrics.DecodeErrors()
			log.Warn("skipping undecodable fill", "tx", b.Events[i].TxHash, "log_index", b.Events[i].LogIndex, "error", res.err)
			continue
		}
		if r.dryRun {
			log.Info("dry-run sale", "sale", res.sale.Key(), "price", res.sale.Price.String(), "token", res.sale.Token)
			continue
		}
		if _, err := r.sink.Save(ctx, res.sale); err != nil {
			return 0, fmt.Errorf("blocks %d-%d: %w", b.From, b.To, err)
		}
		r.metrics.SalesSaved()
	}

	if r.dryRun {
		p.Source.Advance(b)
	} else if err := p.Source.Commit(ctx, b); err != nil {
		return 0, fmt.Errorf("commit %d: %w", b.To, err)
	}
	blocks := b.To - b.From + 1
	r.metrics.BlocksScanned(blocks)
	log.Debug("batch committed", "from", b.From, "to", b.To, "fills", len(b.Events))
	return blocks, nil
}
