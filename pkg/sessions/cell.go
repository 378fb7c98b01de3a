package sessions

import (
	"encoding/binary"
	"sync"
)

type cellValue interface {
	~uint32 | ~uint64
}

// transactedCell is a double-buffered value inside a mapped region:
//
//	[index][slot0][slot1]
//
// The index byte names the slot holding the published value. A write lands
// in the other slot first and is published by flipping the index, so a crash
// at any point leaves either the old or the new value readable, never a torn
// one.
type transactedCell[T cellValue] struct {
	mu    sync.Mutex
	mem   []byte
	width int
}

func cellSize(width int) int {
	return 1 + 2*width
}

func newTransactedCell[T cellValue](mem []byte, width int) (*transactedCell[T], error) {
	if len(mem) != cellSize(width) {
		return nil, ErrInvalidStateFile
	}
	if mem[0] > 1 {
		return nil, ErrCorruptState
	}
	return &transactedCell[T]{mem: mem, width: width}, nil
}

func (c *transactedCell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *transactedCell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return
	}
	c.publish(c.stage(v))
}

// Update applies fn to the published value and publishes the result. It
// returns the value seen before the update. When fn fails nothing is written.
func (c *transactedCell[T]) Update(fn func(T) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		var zero T
		return zero, ErrClosed
	}
	old := c.load()
	next, err := fn(old)
	if err != nil {
		return old, err
	}
	c.publish(c.stage(next))
	return old, nil
}

func (c *transactedCell[T]) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem = nil
}

func (c *transactedCell[T]) load() T {
	if c.mem == nil {
		var zero T
		return zero
	}
	return c.decode(c.slot(c.mem[0]))
}

// stage writes v into the unpublished slot and returns the index value that
// publishes it.
func (c *transactedCell[T]) stage(v T) byte {
	next := c.mem[0] ^ 1
	c.encode(c.slot(next), v)
	return next
}

func (c *transactedCell[T]) publish(index byte) {
	c.mem[0] = index
}

func (c *transactedCell[T]) slot(index byte) []byte {
	off := 1 + int(index)*c.width
	return c.mem[off : off+c.width]
}

func (c *transactedCell[T]) decode(b []byte) T {
	if c.width == 4 {
		return T(binary.LittleEndian.Uint32(b))
	}
	return T(binary.LittleEndian.Uint64(b))
}

func (c *transactedCell[T]) encode(b []byte, v T) {
	if c.width == 4 {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(v))
}
