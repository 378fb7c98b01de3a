package sessions

import (
	"fmt"
	"sync/atomic"
)

// MemoryState keeps counters in process memory only. Every counter is an
// independent atomic so monitoring goroutines can read while the session
// goroutines write.
type MemoryState struct {
	nextSender     atomic.Int64
	nextTarget     atomic.Int64
	lastConnection atomic.Int64
	lastReceived   atomic.Int64
	lastSent       atomic.Int64
}

func NewMemoryState() *MemoryState {
	s := &MemoryState{}
	s.ResetNextSeqNums()
	s.lastConnection.Store(UnknownTimestamp)
	s.lastReceived.Store(UnknownTimestamp)
	s.lastSent.Store(UnknownTimestamp)
	return s
}

func (s *MemoryState) NextSenderSeqNum() int {
	return int(s.nextSender.Load())
}

func (s *MemoryState) NextTargetSeqNum() int {
	return int(s.nextTarget.Load())
}

func (s *MemoryState) SetNextSenderSeqNum(seqNum int) {
	s.nextSender.Store(int64(seqNum))
}

func (s *MemoryState) SetNextTargetSeqNum(seqNum int) {
	s.nextTarget.Store(int64(seqNum))
}

func (s *MemoryState) ConsumeNextSenderSeqNum() int {
	return int(s.nextSender.Add(1) - 1)
}

func (s *MemoryState) ConsumeNextTargetSeqNum() int {
	return int(s.nextTarget.Add(1) - 1)
}

func (s *MemoryState) ResetNextTargetSeqNum(seqNum int) error {
	for {
		current := s.nextTarget.Load()
		if int64(seqNum) <= current {
			return fmt.Errorf("%w: current %d, requested %d", ErrResetBelowCurrent, current, seqNum)
		}
		if s.nextTarget.CompareAndSwap(current, int64(seqNum)) {
			return nil
		}
	}
}

func (s *MemoryState) ResetNextSeqNums() {
	s.nextSender.Store(1)
	s.nextTarget.Store(1)
}

func (s *MemoryState) LastConnectionTimestamp() int64 {
	return s.lastConnection.Load()
}

func (s *MemoryState) SetLastConnectionTimestamp(ts int64) {
	s.lastConnection.Store(ts)
}

func (s *MemoryState) LastReceivedTimestamp() int64 {
	return s.lastReceived.Load()
}

func (s *MemoryState) SetLastReceivedTimestamp(ts int64) {
	s.lastReceived.Store(ts)
}

func (s *MemoryState) LastSentTimestamp() int64 {
	return s.lastSent.Load()
}

func (s *MemoryState) SetLastSentTimestamp(ts int64) {
	s.lastSent.Store(ts)
}

func (s *MemoryState) Flush() error {
	return nil
}

func (s *MemoryState) Close() error {
	return nil
}

var _ State = (*MemoryState)(nil)
