package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/fr3shw3b/fix-session-engine/pkg/transport"
	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyStarted = errors.New("client already started")
	ErrNotInitiator   = errors.New("client sessions must be initiators")
)

type ClientParams struct {
	Dial                 transport.DialFunc
	MaxReconnectAttempts int
	// Clock drives schedule waits and reconnect intervals. Defaults to the
	// wall clock.
	Clock clock.Clock
}

type clientImpl struct {
	params   *ClientParams
	session  *session.Session
	schedule schedule.Schedule
	clock    clock.Clock
	logger   *logrus.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	finished sync.Once
	err      error
}

func NewDefaultClient(
	params *ClientParams,
	sess *session.Session,
	sched schedule.Schedule,
	logger *logrus.Logger,
) Client {
	clk := params.Clock
	if clk == nil {
		clk = clock.New()
	}
	if sched == nil {
		sched = schedule.Always{}
	}
	return &clientImpl{
		params:   params,
		session:  sess,
		schedule: sched,
		clock:    clk,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (c *clientImpl) Connect(ctx context.Context) error {
	if c.session.Role() != session.Initiator {
		return ErrNotInitiator
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	conn, window, err := c.connect(ctx)
	if err != nil {
		cancel()
		c.finish(err)
		return err
	}
	go c.maintain(ctx, conn, window)
	return nil
}

// maintain runs the session until the client is closed, reconnecting
// after every disconnect.
func (c *clientImpl) maintain(ctx context.Context, conn io.ReadWriteCloser, window schedule.Window) {
	for {
		runCtx, stop := c.untilEnd(ctx, window)
		cause := c.session.Run(runCtx, conn)
		stop()
		if ctx.Err() != nil {
			c.finish(nil)
			return
		}

		wait := c.retryInterval(cause)
		entry := c.logger.WithFields(logrus.Fields{
			"session": c.session.ID().String(),
			"retryIn": wait.String(),
		})
		if cause != nil {
			entry.WithError(cause).Warn("session disconnected")
		} else {
			entry.Info("session disconnected")
		}

		if err := c.sleep(ctx, wait); err != nil {
			c.finish(nil)
			return
		}

		var err error
		conn, window, err = c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				err = nil
			}
			c.finish(err)
			return
		}
	}
}

// connect waits until the schedule allows a connection, resets the
// sequence numbers when a new scheduled session has started since the last
// connection, and dials.
func (c *clientImpl) connect(ctx context.Context) (io.ReadWriteCloser, schedule.Window, error) {
	for {
		now := c.clock.Now()
		window, fresh := schedule.Resolve(c.schedule, lastConnection(c.session.State()), now)
		if !window.Contains(now) {
			c.logger.WithFields(logrus.Fields{
				"session": c.session.ID().String(),
				"window":  window.String(),
			}).Info("waiting for the session window to open")
			if err := schedule.WaitForStart(ctx, c.clock, window); err != nil {
				return nil, window, err
			}
			continue
		}

		if fresh && !lastConnection(c.session.State()).IsZero() {
			c.logger.WithFields(logrus.Fields{
				"session": c.session.ID().String(),
				"window":  window.String(),
			}).Info("new scheduled session")
			c.session.ResetSequences()
		}

		conn, err := c.dial(ctx)
		return conn, window, err
	}
}

func (c *clientImpl) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	var conn io.ReadWriteCloser
	exponential := backoff.NewExponentialBackOff()
	if interval := c.session.Settings().ConnectInterval; interval > 0 {
		exponential.InitialInterval = interval
	}
	exponential.Clock = c.clock
	policy := backoff.WithContext(
		backoff.WithMaxRetries(exponential, uint64(c.params.MaxReconnectAttempts)),
		ctx,
	)
	err := backoff.RetryNotifyWithTimer(func() error {
		var err error
		conn, err = c.params.Dial(ctx)
		return err
	}, policy, func(err error, next time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"session": c.session.ID().String(),
			"retryIn": next.String(),
		}).WithError(err).Warn("failed to connect")
	}, &clockTimer{clock: c.clock})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// untilEnd derives a context that is cancelled when the window closes, so
// the session logs out at the end of the trading day.
func (c *clientImpl) untilEnd(ctx context.Context, window schedule.Window) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	timer := c.clock.AfterFunc(window.End.Sub(c.clock.Now()), cancel)
	return runCtx, func() {
		timer.Stop()
		cancel()
	}
}

func (c *clientImpl) retryInterval(cause error) time.Duration {
	settings := c.session.Settings()
	switch {
	case cause == nil:
		return settings.ConnectInterval
	case errors.Is(cause, session.ErrLogonFailed):
		return settings.LogonInterval
	default:
		return settings.ErrorRecoveryInterval
	}
}

func (c *clientImpl) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *clientImpl) finish(err error) {
	c.finished.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *clientImpl) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-c.done
	return c.Err()
}

func (c *clientImpl) Done() <-chan struct{} {
	return c.done
}

func (c *clientImpl) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *clientImpl) Session() *session.Session {
	return c.session
}

// clockTimer runs backoff waits on the client's clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}

func lastConnection(state sessions.State) time.Time {
	ts := state.LastConnectionTimestamp()
	if ts == sessions.UnknownTimestamp {
		return time.Time{}
	}
	return time.UnixMilli(ts)
}
