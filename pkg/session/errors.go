package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotLoggedOn       = errors.New("session: not logged on")
	ErrAlreadyConnected  = errors.New("session: already connected")
	ErrLogonFailed       = errors.New("session: connection ended before logon completed")
	ErrLogonTimeout      = errors.New("session: logon timed out")
	ErrHeartbeatTimeout  = errors.New("session: counterparty stopped responding")
	ErrConnectionLost    = errors.New("session: connection lost")
	ErrMessageTooLarge   = errors.New("session: message exceeds the outbound buffer")
	ErrCounterpartyLogon = errors.New("session: not a logon for a known session")
)

// ProtocolError is a session level violation by the counterparty. It ends
// the connection.
type ProtocolError struct {
	MsgSeqNum int
	MsgType   string
	Reason    string
	Err       error
}

func (e *ProtocolError) Error() string {
	msg := "session: protocol error: " + e.Reason
	if e.MsgType != "" {
		msg += fmt.Sprintf(" (35=%s 34=%d)", e.MsgType, e.MsgSeqNum)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(m *inbound, reason string, err error) *ProtocolError {
	pe := &ProtocolError{Reason: reason, Err: err}
	if m != nil {
		pe.MsgSeqNum = m.seqNum
		pe.MsgType = string(m.msgType)
	}
	return pe
}
