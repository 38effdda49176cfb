package protocol

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/router"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// DefaultKeepAliveInterval is the time between pings sent by a child.
const DefaultKeepAliveInterval = 20 * time.Second

// KeepAlive pings the parent periodically so an orphaned child can notice
// that nobody is listening any more.
type KeepAlive struct {
	log      *slog.Logger
	c        *Controller
	interval time.Duration
	active   atomic.Bool
	sub      *router.Subscription
}

// NewKeepAlive subscribes to pong replies on c. Call Run to start pinging.
func NewKeepAlive(log *slog.Logger, c *Controller, interval time.Duration) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}

	k := &KeepAlive{
		log:      log.With("component", "keepalive"),
		c:        c,
		interval: interval,
	}
	k.active.Store(true)
	k.sub = c.Router().Subscribe(wire.EventPong, func(*string, error) {
		k.active.Store(true)
	})

	return k
}

// Run sends a ping every interval. It returns ErrKeepAliveTimeout when a
// whole interval passes without a pong, and nil when ctx is done or the
// controller closes.
func (k *KeepAlive) Run(ctx context.Context) error {
	defer k.c.Router().Unsubscribe(k.sub)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-k.c.Done():
			return nil

		case <-ticker.C:
			if !k.active.Swap(false) {
				k.log.Warn("No pong received, giving up on parent", "interval", k.interval)

				return errors.ErrKeepAliveTimeout
			}

			if err := k.c.Send(wire.EventPing, wire.Null()); err != nil {
				return err
			}
		}
	}
}

// AnswerPings replies to every ping from the peer with a pong.
func AnswerPings(c *Controller) *router.Subscription {
	return c.Router().Subscribe(wire.EventPing, func(*string, error) {
		if err := c.Send(wire.EventPong, wire.Null()); err != nil {
			c.log.Error("Failed to answer ping", "error", err)
		}
	})
}
