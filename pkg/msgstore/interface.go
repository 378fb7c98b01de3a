package msgstore

import "errors"

// NotFound is returned by Get for a sequence number that aged out of the
// store or was never stored.
const NotFound = -1

var (
	ErrOutOfOrder      = errors.New("msgstore: sequence number not above the last stored")
	ErrMessageTooLarge = errors.New("msgstore: message larger than the store capacity")
	ErrBufferTooSmall  = errors.New("msgstore: destination buffer too small")
)

// Store keeps recently sent frames so resend requests can be answered.
// Implementations are safe for concurrent use.
type Store interface {
	// Put records msg under seqNum, which must be strictly greater than the
	// last stored sequence number.
	Put(seqNum int, msg []byte) error
	// Get copies the message stored for seqNum into dst and returns its
	// length, or NotFound.
	Get(seqNum int, dst []byte) (int, error)
	// Iterator yields the stored messages in [from, to] in ascending order,
	// silently skipping sequence numbers that are not stored.
	Iterator(from, to int) Iterator
	// Clean drops every entry, typically after a sequence reset.
	Clean()
}

type Iterator interface {
	Next() bool
	SeqNum() int
	// Message is valid until the next call to Next.
	Message() []byte
	Err() error
}

type emptyIterator struct{}

func (emptyIterator) Next() bool      { return false }
func (emptyIterator) SeqNum() int     { return 0 }
func (emptyIterator) Message() []byte { return nil }
func (emptyIterator) Err() error      { return nil }
