package metrics

import (
	"context"
	"time"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/progress"
	"github.com/uploadkit/engine/pkg/store"
)

// DefaultPollInterval is the default interval between store polls.
const DefaultPollInterval = 5 * time.Second

// Poller periodically recomputes the Progress Projection for every
// non-terminal session and publishes it to a Metrics registry. The
// projection itself stays pure; the poller is the side effect.
type Poller struct {
	store        store.Store
	metrics      *Metrics
	pollInterval time.Duration
	stopCh       chan struct{}
	stopped      chan struct{}
}

// NewPoller builds a Poller. If pollInterval is 0, DefaultPollInterval is used.
func NewPoller(s store.Store, m *Metrics, pollInterval time.Duration) *Poller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Poller{
		store:        s,
		metrics:      m,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start begins the background polling goroutine. It runs until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		defer close(p.stopped)

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

// Stop signals the polling goroutine to stop and waits for it to exit.
func (p *Poller) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
		close(p.stopCh)
	}
	<-p.stopped
}

func (p *Poller) poll(ctx context.Context) {
	snapshots, err := progress.ObserveAll(ctx, p.store)
	if err != nil {
		logger.WarnCtx(ctx, "metrics poll: failed to observe active sessions", "error", err)
		return
	}
	p.metrics.Publish(snapshots)
}
