package sessions

import "strings"

// SessionID identifies a session from the local side. Sub-ids are optional;
// an absent sub-id is the empty string, so equality and map hashing treat
// absent and empty alike.
type SessionID struct {
	SenderCompID string
	SenderSubID  string
	TargetCompID string
	TargetSubID  string
}

// Reverse returns the identity as the counterparty sees it.
func (id SessionID) Reverse() SessionID {
	return SessionID{
		SenderCompID: id.TargetCompID,
		SenderSubID:  id.TargetSubID,
		TargetCompID: id.SenderCompID,
		TargetSubID:  id.SenderSubID,
	}
}

func (id SessionID) String() string {
	var sb strings.Builder
	sb.WriteString(id.SenderCompID)
	if id.SenderSubID != "" {
		sb.WriteByte('/')
		sb.WriteString(id.SenderSubID)
	}
	sb.WriteString("->")
	sb.WriteString(id.TargetCompID)
	if id.TargetSubID != "" {
		sb.WriteByte('/')
		sb.WriteString(id.TargetSubID)
	}
	return sb.String()
}
