package daemon

import (
	"sync"

	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/bus"
	"github.com/krishhrana/whatsapp-mcp/internal/probe"
)

// CheckLog follows probe results on the bus, logs each one and keeps the
// latest result with the current run of consecutive failures.
type CheckLog struct {
	logger *zap.Logger
	unsub  func()
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	last     probe.Result
	seen     bool
	failures int
}

// FollowChecks subscribes to probe results until Stop.
func FollowChecks(b *bus.Bus, logger *zap.Logger) *CheckLog {
	events, unsub := b.Subscribe(probe.EventResult, 16)
	c := &CheckLog{
		logger: logger.Named("checks"),
		unsub:  unsub,
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case evt := <-events:
				if res, ok := evt.Payload.(probe.Result); ok {
					c.record(res)
				}
			case <-c.done:
				return
			}
		}
	}()
	return c
}

func (c *CheckLog) record(res probe.Result) {
	c.mu.Lock()
	recovered := res.Err == nil && c.failures > 0
	prev := c.failures
	if res.Err != nil {
		c.failures++
	} else {
		c.failures = 0
	}
	c.last, c.seen = res, true
	failures := c.failures
	c.mu.Unlock()

	switch {
	case res.Err != nil:
		c.logger.Warn("archive check failed",
			zap.Int("consecutive", failures),
			zap.Duration("took", res.Took),
			zap.Error(res.Err),
		)
	case recovered:
		c.logger.Info("archive check recovered", zap.Int("after_failures", prev))
	default:
		c.logger.Debug("archive check ok",
			zap.Int64("chats", res.Stats.Chats),
			zap.Int64("messages", res.Stats.Messages),
			zap.Duration("took", res.Took),
		)
	}
}

// Last returns the latest result and the consecutive failure count. ok is
// false before the first result arrives.
func (c *CheckLog) Last() (res probe.Result, failures int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.failures, c.seen
}

// Stop unsubscribes and waits for the follower to exit.
func (c *CheckLog) Stop() {
	c.unsub()
	close(c.done)
	c.wg.Wait()
}
