package session

import (
	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/sirupsen/logrus"
)

// Message is an inbound application message. Every field aliases the
// connection's read buffer and is only valid during the handler call.
type Message struct {
	MsgType codec.View
	SeqNum  int
	PossDup bool
	// Frame is the complete frame as received.
	Frame []byte
	// Body holds the fields after the standard header, up to the checksum.
	Body []byte
}

// Handler receives application messages in sequence order on the
// connection's reader goroutine. Rejects are delivered as well.
type Handler interface {
	OnMessage(s *Session, msg Message)
}

type HandlerFunc func(s *Session, msg Message)

func (f HandlerFunc) OnMessage(s *Session, msg Message) {
	f(s, msg)
}

// Listener is told about every status transition. cause is set when the
// session disconnects because of an error.
type Listener func(id sessions.SessionID, status Status, cause error)

type Option func(*Session)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *Session) {
		s.clock = clk
	}
}

func WithHandler(handler Handler) Option {
	return func(s *Session) {
		s.handler = handler
	}
}

func WithMessageLog(log MessageLog) Option {
	return func(s *Session) {
		s.messageLog = log
	}
}

func WithListener(listener Listener) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, listener)
	}
}
