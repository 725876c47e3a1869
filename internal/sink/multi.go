package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/sale"
)

// Filtered saves only the sales whose fields satisfy every predicate.
type Filtered struct {
	next  sale.Sink
	preds []Predicate
}

// NewFiltered compiles where expressions in front of next.
func NewFiltered(next sale.Sink, where []string) (*Filtered, error) {
	preds, err := CompilePredicates(where)
	if err != nil {
		return nil, err
	}
	return &Filtered{next: next, preds: preds}, nil
}

func (f *Filtered) Save(ctx context.Context, s sale.SaleEntity) (sale.SaleEntity, error) {
	if !Match(f.preds, s.Fields()) {
		return s, nil
	}
	return f.next.Save(ctx, s)
}

// Named tags a sink with its configured id for error messages.
type Named struct {
	ID   string
	Sink sale.Sink
}

// Multi fans a sale out to every sink in order and stops at the first failure.
type Multi []Named

func (m Multi) Save(ctx context.Context, s sale.SaleEntity) (sale.SaleEntity, error) {
	out := s
	for _, n := range m {
		saved, err := n.Sink.Save(ctx, s)
		if err != nil {
			return s, fmt.Errorf("sink %s: %w", n.ID, err)
		}
		out = saved
	}
	return out, nil
}

// Build creates the configured sinks. db backs "store" sinks and may be nil
// when none is configured.
func Build(cfgs []config.Sink, db Inserter, log *slog.Logger) (Multi, error) {
	out := make(Multi, 0, len(cfgs))
	for _, c := range cfgs {
		var (
			s   sale.Sink
			err error
		)
		switch strings.ToLower(c.Type) {
		case "store":
			if db == nil {
				return nil, fmt.Errorf("sink %s: no database", c.ID)
			}
			s = NewStore(db, log)
		case "log":
			s = NewLog(log)
		case "slack":
			s, err = NewSlack(c.WebhookURL, c.Template)
		case "teams":
			s, err = NewTeams(c.WebhookURL, c.Template)
		case "webhook":
			s, err = NewWebhook(c.URL, c.Method, c.Template, nil)
		default:
			err = fmt.Errorf("unsupported sink type: %s", c.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", c.ID, err)
		}
		if len(c.Where) > 0 {
			if s, err = NewFiltered(s, c.Where); err != nil {
				return nil, fmt.Errorf("sink %s where: %w", c.ID, err)
			}
		}
		out = append(out, Named{ID: c.ID, Sink: s})
	}
	return out, nil
}
