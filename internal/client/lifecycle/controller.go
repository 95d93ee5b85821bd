// Package lifecycle reacts to connectivity and application visibility
// changes, driving the syncer and the reconciliation listener so the rest
// of the client never has to.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/kollectcare/trialsync/internal/client/listener"
	"github.com/kollectcare/trialsync/internal/client/syncer"
	"github.com/kollectcare/trialsync/internal/logging"
)

// DefaultSyncInterval is how often the background loop retries the queue
// while online.
const DefaultSyncInterval = 30 * time.Second

// RetryRegistrar asks the host environment to schedule a later flush
// attempt even when the application is no longer running. Best-effort: a
// missing or failing registrar affects timeliness only, since the periodic
// loop and connectivity transitions still drain the queue.
type RetryRegistrar interface {
	RegisterRetry(ctx context.Context) error
}

// Controller wires connectivity and foreground/background transitions into
// sync behavior.
type Controller struct {
	syncer   *syncer.Syncer
	listener *listener.Listener
	logger   logging.Logger
	interval time.Duration

	mu        sync.Mutex
	online    bool
	registrar RetryRegistrar
	// watched is the set of records the caller wants reconciled. It
	// outlives the listener's live subscriptions, which are torn down on
	// every background transition and recreated from this set.
	watched map[string]struct{}
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New builds a Controller. A non-positive interval falls back to
// DefaultSyncInterval.
func New(s *syncer.Syncer, l *listener.Listener, logger logging.Logger, interval time.Duration) *Controller {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	c := &Controller{
		syncer:   s,
		listener: l,
		logger:   logger,
		interval: interval,
		watched:  map[string]struct{}{},
	}
	// A created record moves to its server id mid-session; the open
	// subscription has to follow it or change pushes go to a dead key.
	s.OnIDMigrated(c.moveSubscription)
	return c
}

// SetRetryRegistrar installs the host's background-retry hook.
func (c *Controller) SetRetryRegistrar(r RetryRegistrar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrar = r
}

func (c *Controller) requestRetry(ctx context.Context) {
	c.mu.Lock()
	r := c.registrar
	c.mu.Unlock()
	if r == nil {
		return
	}
	if err := r.RegisterRetry(ctx); err != nil {
		c.logger.Debug(ctx, "background retry registration failed", "error", err)
	}
}

// Start launches the periodic background flush. The loop runs until Stop
// or until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = make(chan struct{})
	go c.run(ctx, c.stopped)
}

// Stop halts the background loop and tears down every subscription. It
// blocks until the loop has exited.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	stopped := c.stopped
	c.cancel = nil
	c.stopped = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	c.listener.UnsubscribeAll()
}

func (c *Controller) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.syncer.Flush(ctx, false); err != nil {
				c.logger.Warn(ctx, "background flush failed", "error", err)
				c.requestRetry(ctx)
			}
		}
	}
}

// SetOnline records a connectivity transition. Going online immediately
// drains whatever accumulated while offline; going offline just parks the
// queue.
func (c *Controller) SetOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	was := c.online
	c.online = online
	c.mu.Unlock()

	c.syncer.SetOnline(online)
	if online && !was {
		c.logger.Info(ctx, "connectivity restored")
		if err := c.syncer.Flush(ctx, false); err != nil {
			c.logger.Warn(ctx, "flush on reconnect failed", "error", err)
			c.requestRetry(ctx)
		}
	}
	if !online && was {
		c.logger.Info(ctx, "connectivity lost")
		// Edits made from here on cannot flush until the host wakes us.
		c.requestRetry(ctx)
	}
}

// OnForeground handles the application returning to the foreground:
// subscriptions opened before suspension may be silently dead, so every
// watched record gets a fresh one, then the queue is flushed.
func (c *Controller) OnForeground(ctx context.Context) {
	for _, patientID := range c.watchedIDs() {
		if err := c.listener.Subscribe(ctx, patientID); err != nil {
			c.logger.Warn(ctx, "resubscribe failed", "patient_id", patientID, "error", err)
		}
	}
	if err := c.syncer.Flush(ctx, false); err != nil {
		c.logger.Warn(ctx, "flush on foreground failed", "error", err)
		c.requestRetry(ctx)
	}
}

// OnBackground handles the application moving to the background. Live
// subscriptions are torn down; the watched set is kept so OnForeground can
// recreate them.
func (c *Controller) OnBackground(ctx context.Context) {
	c.logger.Debug(ctx, "application backgrounded")
	c.listener.UnsubscribeAll()
}

// Watch opens the reconciliation subscription for one record and keeps it
// across background/foreground cycles until Unwatch.
func (c *Controller) Watch(ctx context.Context, patientID string) error {
	c.mu.Lock()
	c.watched[patientID] = struct{}{}
	c.mu.Unlock()
	return c.listener.Subscribe(ctx, patientID)
}

// Unwatch closes the reconciliation subscription for one record.
func (c *Controller) Unwatch(patientID string) {
	c.mu.Lock()
	delete(c.watched, patientID)
	c.mu.Unlock()
	c.listener.Unsubscribe(patientID)
}

func (c *Controller) watchedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.watched))
	for id := range c.watched {
		ids = append(ids, id)
	}
	return ids
}

func (c *Controller) moveSubscription(tempID, serverID string) {
	ctx := context.Background()

	c.mu.Lock()
	_, watched := c.watched[tempID]
	delete(c.watched, tempID)
	if watched {
		c.watched[serverID] = struct{}{}
	}
	c.mu.Unlock()

	c.listener.Unsubscribe(tempID)
	if !watched {
		return
	}
	if err := c.listener.Subscribe(ctx, serverID); err != nil {
		c.logger.Warn(ctx, "subscription migration failed", "server_id", serverID, "error", err)
	}
}
