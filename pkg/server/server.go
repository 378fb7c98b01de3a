package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/fr3shw3b/fix-session-engine/pkg/transport"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownSession = errors.New("no acceptor session for counterparty")
	ErrNotAcceptor    = errors.New("session is not an acceptor")
	ErrDuplicate      = errors.New("session registered twice")
	ErrLogonTimeout   = errors.New("no logon received")
	ErrOutsideWindow  = errors.New("logon outside the session window")
)

type AcceptorParams struct {
	// Schedule limits when counterparties may log on. Defaults to always.
	Schedule schedule.Schedule
	// Clock is read against the schedule. Defaults to the wall clock.
	Clock clock.Clock
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FIX counterparties are not browsers.
		return true
	},
}

// Acceptor routes inbound connections to the acceptor session named by the
// counterparty's Logon. Connections arrive either from a net.Listener or as
// WebSocket upgrades through ServeHTTP.
type Acceptor struct {
	logger       *logrus.Logger
	schedule     schedule.Schedule
	clock        clock.Clock
	sessions     map[sessions.SessionID]*session.Session
	maxFrameSize int
	logonTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAcceptor(params *AcceptorParams, logger *logrus.Logger, sessionList ...*session.Session) (*Acceptor, error) {
	a := &Acceptor{
		logger:   logger,
		schedule: schedule.Always{},
		clock:    clock.New(),
		sessions: make(map[sessions.SessionID]*session.Session, len(sessionList)),
	}
	if params != nil && params.Schedule != nil {
		a.schedule = params.Schedule
	}
	if params != nil && params.Clock != nil {
		a.clock = params.Clock
	}
	for _, sess := range sessionList {
		if sess.Role() != session.Acceptor {
			return nil, fmt.Errorf("%w: %s", ErrNotAcceptor, sess.ID())
		}
		if _, exists := a.sessions[sess.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, sess.ID())
		}
		a.sessions[sess.ID()] = sess

		settings := sess.Settings()
		if settings.InboundBufferSize > a.maxFrameSize {
			a.maxFrameSize = settings.InboundBufferSize
		}
		if settings.LogonTimeout > a.logonTimeout {
			a.logonTimeout = settings.LogonTimeout
		}
	}
	if a.maxFrameSize == 0 {
		a.maxFrameSize = session.DefaultSettings().InboundBufferSize
		a.logonTimeout = session.DefaultSettings().LogonTimeout
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	return a, nil
}

// Serve accepts connections from ln until ctx is cancelled or the acceptor
// is closed. Cancelling ctx also logs out the sessions connected through ln.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	stopClosed := context.AfterFunc(a.ctx, func() { ln.Close() })
	defer stopClosed()

	a.logger.Info("acceptor listening on ", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || a.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !a.track() {
			conn.Close()
			return nil
		}
		go func() {
			defer a.wg.Done()
			_ = a.handle(ctx, conn)
		}()
	}
}

func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websockets upgrade error: ", err)
		return
	}
	conn := transport.NewWebSocketConn(ws)
	if !a.track() {
		conn.Close()
		return
	}
	defer a.wg.Done()
	_ = a.handle(context.Background(), conn)
}

// Close logs out every connected session and waits for their connections
// to end.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
	a.wg.Wait()
	return nil
}

func (a *Acceptor) track() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.wg.Add(1)
	return true
}

// handle reads the Logon, finds its session and hands the connection over
// for the rest of the current session window.
func (a *Acceptor) handle(ctx context.Context, conn io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	reader := codec.NewFrameReader(conn, a.maxFrameSize)
	timer := time.AfterFunc(a.logonTimeout, func() { conn.Close() })
	frame, err := reader.ReadFrame()
	if !timer.Stop() {
		err = ErrLogonTimeout
	}
	if err != nil {
		conn.Close()
		a.logger.WithError(err).Debug("connection closed before logon")
		return err
	}

	id, err := session.LogonSessionID(frame)
	if err != nil {
		conn.Close()
		a.logger.WithError(err).Warn("rejecting connection")
		return err
	}
	sess, exists := a.sessions[id]
	if !exists {
		conn.Close()
		a.logger.WithField("session", id.String()).Warn("rejecting logon for unknown session")
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	entry := a.logger.WithField("session", id.String())
	now := a.clock.Now()
	window, fresh := schedule.Resolve(a.schedule, lastConnection(sess.State()), now)
	if !window.Contains(now) {
		conn.Close()
		entry.WithField("window", window.String()).Warn("rejecting logon outside the session window")
		return fmt.Errorf("%w: %s", ErrOutsideWindow, window)
	}
	if fresh && sess.State().LastConnectionTimestamp() != sessions.UnknownTimestamp && sess.ResetSequencesIfIdle() {
		entry.WithField("window", window.String()).Info("new scheduled session")
	}
	// Cancelling at the window end logs the counterparty out.
	windowEnd := a.clock.AfterFunc(window.End.Sub(now), cancel)
	defer windowEnd.Stop()

	err = sess.Accept(ctx, conn, reader, frame)
	switch {
	case errors.Is(err, session.ErrAlreadyConnected):
		entry.Warn("rejecting logon for a session that is already connected")
	case err != nil:
		entry.WithError(err).Info("connection ended")
	default:
		entry.Info("connection ended")
	}
	return err
}

func lastConnection(state sessions.State) time.Time {
	ts := state.LastConnectionTimestamp()
	if ts == sessions.UnknownTimestamp {
		return time.Time{}
	}
	return time.UnixMilli(ts)
}
