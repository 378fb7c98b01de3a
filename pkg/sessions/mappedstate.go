package sessions

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// State file layout: the last connection timestamp, then the next sender and
// next target sequence numbers, each stored as a transacted cell.
const (
	timestampCellOffset = 0
	senderCellOffset    = timestampCellOffset + 1 + 2*8
	targetCellOffset    = senderCellOffset + 1 + 2*4
	StateFileSize       = targetCellOffset + 1 + 2*4
)

// MappedState persists counters in a memory-mapped file so they survive a
// process crash. Updates are published per field through the double buffer
// protocol; Flush additionally forces the pages to stable media. The
// received and sent timestamps are not part of the file and reset on open.
type MappedState struct {
	path         string
	file         *os.File
	mem          []byte
	connection   *transactedCell[uint64]
	sender       *transactedCell[uint32]
	target       *transactedCell[uint32]
	lastReceived atomic.Int64
	lastSent     atomic.Int64
	closed       atomic.Bool
	logger       *logrus.Logger
}

// OpenMappedState maps the state file at path, creating and initialising it
// when it does not exist. A file whose index bytes are not 0 or 1 is refused
// with ErrCorruptState.
func OpenMappedState(path string, logger *logrus.Logger) (*MappedState, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	switch info.Size() {
	case 0:
		if err := file.Truncate(StateFileSize); err != nil {
			file.Close()
			return nil, err
		}
	case StateFileSize:
	default:
		file.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, expected %d", ErrInvalidStateFile, path, info.Size(), StateFileSize)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, StateFileSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}

	s := &MappedState{path: path, file: file, mem: mem, logger: logger}
	if err := s.attachCells(); err != nil {
		unix.Munmap(mem)
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.lastReceived.Store(UnknownTimestamp)
	s.lastSent.Store(UnknownTimestamp)

	// Counters are never 0 once written, so zeroes mean the file was created
	// but never initialised.
	if s.sender.Get() == 0 || s.target.Get() == 0 {
		unknown := UnknownTimestamp
		s.connection.Set(uint64(unknown))
		s.ResetNextSeqNums()
		if err := s.Flush(); err != nil {
			s.Close()
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"path":             path,
		"nextSenderSeqNum": s.NextSenderSeqNum(),
		"nextTargetSeqNum": s.NextTargetSeqNum(),
	}).Debug("opened session state")
	return s, nil
}

func (s *MappedState) attachCells() error {
	var err error
	s.connection, err = newTransactedCell[uint64](s.mem[timestampCellOffset:senderCellOffset], 8)
	if err != nil {
		return err
	}
	s.sender, err = newTransactedCell[uint32](s.mem[senderCellOffset:targetCellOffset], 4)
	if err != nil {
		return err
	}
	s.target, err = newTransactedCell[uint32](s.mem[targetCellOffset:StateFileSize], 4)
	return err
}

func (s *MappedState) NextSenderSeqNum() int {
	return int(s.sender.Get())
}

func (s *MappedState) NextTargetSeqNum() int {
	return int(s.target.Get())
}

func (s *MappedState) SetNextSenderSeqNum(seqNum int) {
	s.sender.Set(uint32(seqNum))
}

func (s *MappedState) SetNextTargetSeqNum(seqNum int) {
	s.target.Set(uint32(seqNum))
}

func (s *MappedState) ConsumeNextSenderSeqNum() int {
	old, _ := s.sender.Update(increment)
	return int(old)
}

func (s *MappedState) ConsumeNextTargetSeqNum() int {
	old, _ := s.target.Update(increment)
	return int(old)
}

func increment(v uint32) (uint32, error) {
	return v + 1, nil
}

func (s *MappedState) ResetNextTargetSeqNum(seqNum int) error {
	_, err := s.target.Update(func(current uint32) (uint32, error) {
		if seqNum <= int(current) {
			return current, fmt.Errorf("%w: current %d, requested %d", ErrResetBelowCurrent, current, seqNum)
		}
		return uint32(seqNum), nil
	})
	return err
}

func (s *MappedState) ResetNextSeqNums() {
	s.sender.Set(1)
	s.target.Set(1)
}

func (s *MappedState) LastConnectionTimestamp() int64 {
	return int64(s.connection.Get())
}

func (s *MappedState) SetLastConnectionTimestamp(ts int64) {
	s.connection.Set(uint64(ts))
}

func (s *MappedState) LastReceivedTimestamp() int64 {
	return s.lastReceived.Load()
}

func (s *MappedState) SetLastReceivedTimestamp(ts int64) {
	s.lastReceived.Store(ts)
}

func (s *MappedState) LastSentTimestamp() int64 {
	return s.lastSent.Load()
}

func (s *MappedState) SetLastSentTimestamp(ts int64) {
	s.lastSent.Store(ts)
}

func (s *MappedState) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := unix.Msync(s.mem, unix.MS_SYNC); err != nil {
		return fmt.Errorf("flushing %s: %w", s.path, err)
	}
	return nil
}

func (s *MappedState) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	syncErr := unix.Msync(s.mem, unix.MS_SYNC)
	s.connection.detach()
	s.sender.detach()
	s.target.detach()
	unmapErr := unix.Munmap(s.mem)
	s.mem = nil
	return errors.Join(syncErr, unmapErr, s.file.Close())
}

var _ State = (*MappedState)(nil)
