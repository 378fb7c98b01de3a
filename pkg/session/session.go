package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/fr3shw3b/fix-session-engine/pkg/msgstore"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Session runs the FIX session protocol for one SessionID over successive
// connections. Sequence numbers live in the State and survive reconnects.
//
// Sends from any goroutine go through a single path that stamps, stores and
// writes each message under one lock, so the store and the wire always see
// messages in sequence order.
type Session struct {
	id         sessions.SessionID
	role       Role
	settings   Settings
	state      sessions.State
	store      msgstore.Store
	logger     *logrus.Logger
	clock      clock.Clock
	handler    Handler
	messageLog MessageLog
	listeners  []Listener
	label      string

	status    atomic.Int32
	heartbeat atomic.Int64

	// mu guards the send path and the current connection.
	mu      sync.Mutex
	conn    *connection
	builder *codec.Builder
	scratch []byte
	out     []byte
	resent  inbound

	// Owned by the reader goroutine of the current connection.
	in          inbound
	replay      inbound
	queue       map[int]queued
	queuedBytes int
	resendEnd   int
}

// maxQueuedFrames is how many full inbound buffers may be held back while
// a gap is open.
const maxQueuedFrames = 16

// queued is a message received ahead of a gap. Messages already acted upon
// when they arrived, such as a Logon, only need their sequence number
// consumed on replay.
type queued struct {
	frame     []byte
	processed bool
}

// connection is the per-connection state shared by the reader and timer
// goroutines.
type connection struct {
	rw     io.ReadWriteCloser
	reader *codec.FrameReader

	closeOnce sync.Once
	done      chan struct{}
	cause     error

	loggedOn     atomic.Bool
	received     atomic.Uint64
	lastReceived atomic.Int64
	lastSent     atomic.Int64
	logoutSentAt atomic.Int64
}

func newConnection(rw io.ReadWriteCloser, reader *codec.FrameReader, now time.Time) *connection {
	c := &connection{rw: rw, reader: reader, done: make(chan struct{})}
	c.lastReceived.Store(now.UnixNano())
	c.lastSent.Store(now.UnixNano())
	return c
}

// close records the first cause and closes the transport, which unblocks
// the reader.
func (c *connection) close(cause error) {
	c.closeOnce.Do(func() {
		c.cause = cause
		c.rw.Close()
		close(c.done)
	})
}

func New(
	id sessions.SessionID,
	role Role,
	settings Settings,
	state sessions.State,
	store msgstore.Store,
	opts ...Option,
) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if id.SenderCompID == "" || id.TargetCompID == "" {
		return nil, fmt.Errorf("%w: sender and target comp ids are required", ErrInvalidSettings)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: sequence state is required", ErrInvalidSettings)
	}
	if store == nil {
		store = msgstore.NewNoopStore()
	}

	s := &Session{
		id:         id,
		role:       role,
		settings:   settings,
		state:      state,
		store:      store,
		logger:     logrus.StandardLogger(),
		clock:      clock.New(),
		handler:    HandlerFunc(func(*Session, Message) {}),
		messageLog: noopMessageLog{},
		label:      id.String(),
		queue:      map[int]queued{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = s.NewBuilder()
	s.scratch = make([]byte, 0, settings.OutboundBufferSize)
	s.out = make([]byte, 0, settings.OutboundBufferSize)
	s.heartbeat.Store(int64(settings.HeartbeatInterval))
	return s, nil
}

func (s *Session) ID() sessions.SessionID {
	return s.id
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) Settings() Settings {
	return s.settings
}

func (s *Session) State() sessions.State {
	return s.state
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// NewBuilder returns a Builder sized and configured for this session.
func (s *Session) NewBuilder() *codec.Builder {
	b := codec.NewBuilder(s.settings.OutboundBufferSize)
	b.SetDefaultPrecision(s.settings.DecimalPrecision)
	return b
}

// ResetSequences sets both counters back to 1 and drops every stored
// message.
func (s *Session) ResetSequences() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ResetSequencesIfIdle resets like ResetSequences unless a connection is
// attached, and reports whether it did.
func (s *Session) ResetSequencesIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return false
	}
	s.resetLocked()
	return true
}

func (s *Session) resetLocked() {
	s.state.ResetNextSeqNums()
	s.store.Clean()
	s.logger.WithField("session", s.label).Info("sequence numbers reset")
}

// Run drives one connection until it ends and returns the disconnect cause,
// nil after a clean logout or cancellation. An initiator sends its Logon
// straight away, an acceptor waits for the counterparty's. Cancelling ctx
// logs out gracefully when logged on.
func (s *Session) Run(ctx context.Context, rw io.ReadWriteCloser) error {
	return s.run(ctx, rw, codec.NewFrameReader(rw, s.settings.InboundBufferSize), nil)
}

// Accept drives an acceptor connection whose Logon frame has already been
// read from reader.
func (s *Session) Accept(ctx context.Context, rw io.ReadWriteCloser, reader *codec.FrameReader, logon []byte) error {
	if s.role != Acceptor {
		rw.Close()
		return fmt.Errorf("%w: only acceptors accept connections", ErrInvalidSettings)
	}
	return s.run(ctx, rw, reader, logon)
}

// Disconnect closes the current connection, if any, with the given cause.
func (s *Session) Disconnect(cause error) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		c.close(cause)
	}
}

func (s *Session) run(ctx context.Context, rw io.ReadWriteCloser, reader *codec.FrameReader, logon []byte) error {
	started := s.clock.Now()
	c := newConnection(rw, reader, started)

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		rw.Close()
		return ErrAlreadyConnected
	}
	s.conn = c
	s.mu.Unlock()

	s.queue = map[int]queued{}
	s.queuedBytes = 0
	s.resendEnd = 0
	s.heartbeat.Store(int64(s.settings.HeartbeatInterval))
	s.setStatus(Connecting, nil)

	if s.role == Initiator {
		s.mu.Lock()
		if s.settings.ResetSeqNumsOnLogon {
			s.resetLocked()
		}
		_, err := s.sendLogonLocked(c, s.settings.ResetSeqNumsOnLogon)
		s.mu.Unlock()
		if err != nil {
			c.close(err)
		} else {
			s.setStatus(LogonSent, nil)
		}
	} else {
		s.setStatus(AwaitingLogon, nil)
	}

	var g errgroup.Group
	g.Go(func() error {
		s.readLoop(c, logon)
		return nil
	})
	g.Go(func() error {
		s.timerLoop(ctx, c, started)
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	s.state.SetLastConnectionTimestamp(s.clock.Now().UnixMilli())
	if err := s.state.Flush(); err != nil {
		s.logger.WithField("session", s.label).WithError(err).Warn("failed to flush sequence state")
	}

	cause := c.cause
	if cause != nil && !c.loggedOn.Load() {
		cause = fmt.Errorf("%w: %w", ErrLogonFailed, cause)
	}
	reason := "logout"
	if cause != nil {
		reason = "error"
	}
	metrics.DisconnectsTotal.WithLabelValues(s.label, reason).Inc()
	s.setStatus(Disconnected, cause)
	return cause
}

func (s *Session) setStatus(status Status, cause error) {
	s.status.Store(int32(status))
	s.notify(status, cause)
}

func (s *Session) notify(status Status, cause error) {
	metrics.SessionStatus.WithLabelValues(s.label).Set(float64(status))
	entry := s.logger.WithFields(logrus.Fields{
		"session": s.label,
		"status":  status.String(),
	})
	if cause != nil {
		entry.WithError(cause).Info("session status changed")
	} else {
		entry.Debug("session status changed")
	}
	for _, listener := range s.listeners {
		listener(s.id, status, cause)
	}
}
