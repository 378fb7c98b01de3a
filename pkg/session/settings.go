package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
)

var ErrInvalidSettings = errors.New("session: invalid settings")

// Settings configure the protocol behaviour of a session. The reconnect
// intervals are only used by initiators.
type Settings struct {
	BeginString       string
	HeartbeatInterval time.Duration
	LogonTimeout      time.Duration
	LogoutTimeout     time.Duration

	// ConnectInterval is the wait before reconnecting after a clean logout.
	ConnectInterval time.Duration
	// LogonInterval is the wait after a connection that never logged on.
	LogonInterval time.Duration
	// ErrorRecoveryInterval is the wait after an error ended a logged on
	// connection.
	ErrorRecoveryInterval time.Duration

	ResetSeqNumsOnLogon    bool
	SendNextExpectedSeqNum bool
	// QueueOutOfOrder keeps messages received ahead of a gap and replays
	// them once the gap is filled, instead of waiting for their resend.
	QueueOutOfOrder bool

	InboundBufferSize  int
	OutboundBufferSize int
	DecimalPrecision   int
}

func DefaultSettings() Settings {
	return Settings{
		BeginString:           utils.DefaultBeginString,
		HeartbeatInterval:     30 * time.Second,
		LogonTimeout:          10 * time.Second,
		LogoutTimeout:         10 * time.Second,
		ConnectInterval:       5 * time.Second,
		LogonInterval:         5 * time.Second,
		ErrorRecoveryInterval: time.Second,
		QueueOutOfOrder:       true,
		InboundBufferSize:     64 * 1024,
		OutboundBufferSize:    64 * 1024,
		DecimalPrecision:      codec.DefaultPrecision,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.BeginString == "":
		return fmt.Errorf("%w: begin string is required", ErrInvalidSettings)
	case s.HeartbeatInterval < time.Second:
		return fmt.Errorf("%w: heartbeat interval must be at least one second, got %s", ErrInvalidSettings, s.HeartbeatInterval)
	case s.LogonTimeout <= 0:
		return fmt.Errorf("%w: logon timeout must be positive", ErrInvalidSettings)
	case s.LogoutTimeout <= 0:
		return fmt.Errorf("%w: logout timeout must be positive", ErrInvalidSettings)
	case s.ConnectInterval < 0 || s.LogonInterval < 0 || s.ErrorRecoveryInterval < 0:
		return fmt.Errorf("%w: reconnect intervals must not be negative", ErrInvalidSettings)
	case s.InboundBufferSize < 256:
		return fmt.Errorf("%w: inbound buffer size must be at least 256 bytes, got %d", ErrInvalidSettings, s.InboundBufferSize)
	case s.OutboundBufferSize < 256:
		return fmt.Errorf("%w: outbound buffer size must be at least 256 bytes, got %d", ErrInvalidSettings, s.OutboundBufferSize)
	case s.DecimalPrecision < 0 || s.DecimalPrecision > codec.MaxPrecision:
		return fmt.Errorf("%w: decimal precision must be within [0, %d], got %d", ErrInvalidSettings, codec.MaxPrecision, s.DecimalPrecision)
	}
	return nil
}

func (s Settings) heartbeatSeconds() int {
	return int(s.HeartbeatInterval / time.Second)
}
