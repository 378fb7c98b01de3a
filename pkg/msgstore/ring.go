package msgstore

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	// MinCapacity is the smallest ring a RingStore will allocate.
	MinCapacity = 64

	// Each entry is laid out as [length u32][payload][seqNum u32][length u32].
	// The trailing length lets Get and the iterator walk backwards from the
	// newest entry without an index.
	entryOverhead = 12
)

// RingStore is a fixed capacity message store over a single byte ring.
// Putting a message that does not fit evicts the oldest entries.
type RingStore struct {
	mu         sync.Mutex
	buf        []byte
	mask       int64
	head       int64
	tail       int64
	lastSeqNum int
}

// NewRingStore creates a store holding at most capacity bytes, rounded up to
// the next power of two.
func NewRingStore(capacity int) *RingStore {
	size := MinCapacity
	for size < capacity {
		size <<= 1
	}
	return &RingStore{
		buf:  make([]byte, size),
		mask: int64(size - 1),
	}
}

func (r *RingStore) Capacity() int {
	return len(r.buf)
}

// LastSeqNum returns the sequence number of the newest entry, or 0 when the
// store is empty.
func (r *RingStore) LastSeqNum() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeqNum
}

func (r *RingStore) Put(seqNum int, msg []byte) error {
	size := int64(len(msg) + entryOverhead)
	if size > int64(len(r.buf)) {
		return fmt.Errorf("%w: %d bytes into a %d byte ring", ErrMessageTooLarge, len(msg), len(r.buf))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seqNum <= r.lastSeqNum {
		return fmt.Errorf("%w: put %d after %d", ErrOutOfOrder, seqNum, r.lastSeqNum)
	}

	for r.tail+size-r.head > int64(len(r.buf)) {
		n := r.uint32At(r.head)
		r.head += int64(n) + entryOverhead
	}

	pos := r.tail
	r.putUint32(pos, uint32(len(msg)))
	r.write(pos+4, msg)
	r.putUint32(pos+4+int64(len(msg)), uint32(seqNum))
	r.putUint32(pos+8+int64(len(msg)), uint32(len(msg)))
	r.tail += size
	r.lastSeqNum = seqNum
	return nil
}

func (r *RingStore) Get(seqNum int, dst []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, length, found := r.locate(seqNum)
	if !found {
		return NotFound, nil
	}
	if len(dst) < length {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, length, len(dst))
	}
	r.read(start+4, dst[:length])
	return length, nil
}

func (r *RingStore) Iterator(from, to int) Iterator {
	if from < 1 {
		from = 1
	}
	return &ringIterator{store: r, next: from, to: to}
}

func (r *RingStore) Clean() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
	r.lastSeqNum = 0
}

// locate walks back from the newest entry. Sequence numbers only grow
// towards the tail, so the walk stops at the first smaller one.
func (r *RingStore) locate(seqNum int) (start int64, length int, found bool) {
	pos := r.tail
	for pos > r.head {
		n := r.uint32At(pos - 4)
		seq := int(r.uint32At(pos - 8))
		start := pos - int64(n) - entryOverhead
		if seq == seqNum {
			return start, int(n), true
		}
		if seq < seqNum {
			return 0, 0, false
		}
		pos = start
	}
	return 0, 0, false
}

// ceiling finds the oldest resident entry with from <= seq <= to.
func (r *RingStore) ceiling(from, to int) (seq int, start int64, length int, found bool) {
	pos := r.tail
	for pos > r.head {
		n := r.uint32At(pos - 4)
		s := int(r.uint32At(pos - 8))
		if s < from {
			break
		}
		begin := pos - int64(n) - entryOverhead
		if s <= to {
			seq, start, length, found = s, begin, int(n), true
		}
		pos = begin
	}
	return seq, start, length, found
}

func (r *RingStore) uint32At(pos int64) uint32 {
	var b [4]byte
	r.read(pos, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (r *RingStore) putUint32(pos int64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	r.write(pos, b[:])
}

func (r *RingStore) write(pos int64, src []byte) {
	off := int(pos & r.mask)
	n := copy(r.buf[off:], src)
	copy(r.buf, src[n:])
}

func (r *RingStore) read(pos int64, dst []byte) {
	off := int(pos & r.mask)
	n := copy(dst, r.buf[off:])
	copy(dst[n:], r.buf)
}

// ringIterator re-locates its position from the newest entry on every step
// so concurrent puts and evictions never leave it pointing into overwritten
// bytes.
type ringIterator struct {
	store  *RingStore
	next   int
	to     int
	seqNum int
	msg    []byte
	done   bool
}

func (it *ringIterator) Next() bool {
	if it.done || it.next > it.to {
		it.done = true
		return false
	}

	r := it.store
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, start, length, found := r.ceiling(it.next, it.to)
	if !found {
		it.done = true
		it.msg = it.msg[:0]
		return false
	}
	if cap(it.msg) < length {
		it.msg = make([]byte, length)
	}
	it.msg = it.msg[:length]
	r.read(start+4, it.msg)
	it.seqNum = seq
	it.next = seq + 1
	return true
}

func (it *ringIterator) SeqNum() int {
	return it.seqNum
}

func (it *ringIterator) Message() []byte {
	return it.msg
}

func (it *ringIterator) Err() error {
	return nil
}

var _ Store = (*RingStore)(nil)
