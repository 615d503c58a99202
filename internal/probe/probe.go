// Package probe periodically checks that the archive answers queries and
// reports the result to the daemon state machine.
package probe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/bus"
	"github.com/krishhrana/whatsapp-mcp/internal/status"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// EventResult is published after every check.
const EventResult = "probe.result"

// Target is what the probe checks. *store.DB satisfies it.
type Target interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Result is the payload of EventResult.
type Result struct {
	Stats store.Stats
	Err   error
	Took  time.Duration
}

// Prober runs checks on a ticker.
type Prober struct {
	target   Target
	machine  *status.Machine
	bus      *bus.Bus
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a prober. Each check is bounded by the smaller of interval and
// five seconds.
func New(target Target, m *status.Machine, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Prober {
	timeout := 5 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Prober{
		target:   target,
		machine:  m,
		bus:      b,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("probe"),
	}
}

// Start runs one check immediately, then one per interval.
func (p *Prober) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop stops the loop and waits for an in-flight check.
func (p *Prober) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ticker.C:
			p.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one check and reports it.
func (p *Prober) Check(ctx context.Context) Result {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	stats, err := p.target.Stats(cctx)
	res := Result{Stats: stats, Err: err, Took: time.Since(start)}
	if ctx.Err() != nil {
		// Shutting down; the failure says nothing about the store.
		return res
	}

	if err != nil {
		p.report(status.Degraded, err.Error())
	} else {
		p.report(status.Serving, "")
	}
	if p.bus != nil {
		p.bus.Publish(bus.Event{Kind: EventResult, Payload: res})
	}
	return res
}

func (p *Prober) report(to status.State, reason string) {
	changed, err := p.machine.Report(to, reason)
	if err != nil {
		p.logger.Debug("state not updated", zap.String("to", string(to)), zap.Error(err))
		return
	}
	if changed {
		p.logger.Info("daemon state changed", zap.String("state", string(to)), zap.String("reason", reason))
	}
}
