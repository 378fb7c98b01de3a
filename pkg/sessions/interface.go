package sessions

import "errors"

// UnknownTimestamp marks a timestamp that has never been recorded.
const UnknownTimestamp int64 = -1

var (
	// ErrResetBelowCurrent is returned when a target sequence reset would move
	// the counter backwards or leave it unchanged.
	ErrResetBelowCurrent = errors.New("sessions: reset target is not above the current sequence number")
	ErrCorruptState      = errors.New("sessions: corrupt state file")
	ErrInvalidStateFile  = errors.New("sessions: state file has an unexpected size")
	ErrClosed            = errors.New("sessions: state is closed")
)

// State holds the sequence counters and activity timestamps of one session.
// Counters start at 1. Implementations are safe for one writer per counter
// alongside concurrent readers and flushers.
type State interface {
	NextSenderSeqNum() int
	NextTargetSeqNum() int
	SetNextSenderSeqNum(seqNum int)
	SetNextTargetSeqNum(seqNum int)
	// ConsumeNextSenderSeqNum returns the current value and advances it by
	// one. The returned value stamps the outgoing message.
	ConsumeNextSenderSeqNum() int
	// ConsumeNextTargetSeqNum returns the current value and advances it by
	// one once an inbound message has been accepted.
	ConsumeNextTargetSeqNum() int
	// ResetNextTargetSeqNum moves the target counter forward to seqNum. It
	// fails with ErrResetBelowCurrent unless seqNum is above the current
	// value.
	ResetNextTargetSeqNum(seqNum int) error
	// ResetNextSeqNums sets both counters back to 1.
	ResetNextSeqNums()

	// Timestamps are epoch milliseconds or UnknownTimestamp.
	LastConnectionTimestamp() int64
	SetLastConnectionTimestamp(ts int64)
	LastReceivedTimestamp() int64
	SetLastReceivedTimestamp(ts int64)
	LastSentTimestamp() int64
	SetLastSentTimestamp(ts int64)

	// Flush forces state to stable storage. Volatile implementations do
	// nothing.
	Flush() error
	Close() error
}
