// Package poller watches the message log and feeds new inbound messages to
// a handler one at a time, oldest first.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/congo-pay/safetext/internal/logging"
	"github.com/congo-pay/safetext/internal/messages"
	"github.com/congo-pay/safetext/internal/metrics"
)

// MessageLog is the read side of the external message store.
type MessageLog interface {
	Recent(ctx context.Context, limit, offset int) ([]messages.Message, error)
	Latest(ctx context.Context) (messages.Message, bool, error)
}

// Handler processes one inbound message. Errors are logged by the poller
// and never stop the loop.
type Handler interface {
	Handle(ctx context.Context, msg messages.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg messages.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg messages.Message) error {
	return f(ctx, msg)
}

// Options configures the polling loop.
type Options struct {
	Interval  time.Duration
	BatchSize int
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Poller owns the cursor and serializes ticks.
type Poller struct {
	log     MessageLog
	handler Handler
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	running atomic.Bool

	mu     sync.Mutex
	cursor Cursor
	seeded bool
}

// New builds a poller. The cursor starts unseeded.
func New(log MessageLog, handler Handler, opts Options, logger *slog.Logger, m *metrics.Metrics) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Poller{log: log, handler: handler, opts: opts, logger: logger, metrics: m}
}

// Cursor returns the current watermark.
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor.Value()
}

// Seed moves the cursor to the newest row in the log so that only messages
// arriving afterwards are handled. An empty log seeds at zero.
func (p *Poller) Seed(ctx context.Context) error {
	latest, found, err := p.log.Latest(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if found {
		p.cursor.Advance(latest.Timestamp)
	}
	p.seeded = true
	p.metrics.Watermark(p.cursor.Value())
	p.logger.Info("cursor seeded", "cursor", p.cursor.Value())
	return nil
}

func (p *Poller) isSeeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seeded
}

// Tick runs one poll cycle. It returns false without doing anything when
// another tick is still in progress.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.Tick(metrics.TickSkipped)
		p.logger.Debug("previous tick still running")
		return false
	}
	defer p.running.Store(false)

	if !p.isSeeded() {
		if err := p.Seed(ctx); err != nil {
			p.metrics.Tick(metrics.TickUnavailable)
			p.logger.Warn("message log unavailable, seeding deferred", "error", err)
			return true
		}
	}

	batch, err := p.log.Recent(ctx, p.opts.BatchSize, 0)
	if err != nil {
		p.metrics.Tick(metrics.TickUnavailable)
		p.logger.Warn("message log unavailable", "error", err)
		return true
	}

	for _, msg := range p.newer(batch) {
		if ctx.Err() != nil {
			return true
		}
		if msg.FromMe || msg.Phone == "" {
			p.advance(msg.Timestamp)
			continue
		}
		if err := p.handler.Handle(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("message handling failed", "message_id", msg.ID, "phone", msg.Phone, "error", err)
		}
		p.advance(msg.Timestamp)
	}
	// Rows dropped during normalization still count toward the watermark.
	for _, msg := range batch {
		p.advance(msg.Timestamp)
	}

	p.metrics.Tick(metrics.TickOK)
	return true
}

// newer normalizes batch and keeps rows newer than the cursor, oldest
// first.
func (p *Poller) newer(batch []messages.Message) []messages.Message {
	p.mu.Lock()
	cursor := p.cursor
	p.mu.Unlock()

	out := make([]messages.Message, 0, len(batch))
	for _, msg := range batch {
		msg.Text = strings.ToLower(strings.TrimSpace(msg.Text))
		if msg.Text == "" || !cursor.After(msg.Timestamp) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (p *Poller) advance(ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor.Advance(ts) {
		p.metrics.Watermark(ts)
	}
}

// Run seeds the cursor and ticks every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Seed(ctx); err != nil {
		p.logger.Warn("message log unavailable at startup", "error", err)
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.opts.Interval, "batch_size", p.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "cursor", p.Cursor())
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
