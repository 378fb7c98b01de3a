package msgstore

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_fail_safe_passes_through_a_healthy_store(t *testing.T) {
	store := NewFailSafe("healthy", NewRingStore(1024), DefaultFailSafeSettings(), createLogger())

	require.NoError(t, store.Put(1, []byte("one")))
	require.NoError(t, store.Put(2, []byte("two")))

	dst := make([]byte, 16)
	n, err := store.Get(2, dst)
	require.NoError(t, err)
	assert.Equal(t, "two", string(dst[:n]))
	assert.Equal(t, []int{1, 2}, collect(t, store.Iterator(1, 2)))
}

func Test_fail_safe_absorbs_panics(t *testing.T) {
	store := NewFailSafe("panicking", panickingStore{}, DefaultFailSafeSettings(), createLogger())

	assert.NotPanics(t, func() {
		require.NoError(t, store.Put(1, []byte("one")))

		n, err := store.Get(1, make([]byte, 8))
		require.NoError(t, err)
		assert.Equal(t, NotFound, n)

		assert.Empty(t, collect(t, store.Iterator(1, 5)))
		store.Clean()
	})
}

func Test_fail_safe_ends_iteration_when_the_store_panics_midway(t *testing.T) {
	inner := NewRingStore(1024)
	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, inner.Put(seq, []byte("x")))
	}
	store := NewFailSafe("midway", &explodingIteratorStore{Store: inner, after: 2}, DefaultFailSafeSettings(), createLogger())

	assert.Equal(t, []int{1, 2}, collect(t, store.Iterator(1, 5)))
}

func Test_fail_safe_stops_calling_a_failing_store_once_the_breaker_opens(t *testing.T) {
	inner := &failingStore{}
	store := NewFailSafe("failing", inner, FailSafeSettings{TripAfter: 3, OpenTimeout: time.Hour}, createLogger())

	for seq := 1; seq <= 10; seq++ {
		require.NoError(t, store.Put(seq, []byte("x")))
	}
	assert.Equal(t, 3, inner.puts)

	n, err := store.Get(1, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, NotFound, n)
	assert.Equal(t, 0, inner.gets)
}

type panickingStore struct{}

func (panickingStore) Put(int, []byte) error        { panic("put exploded") }
func (panickingStore) Get(int, []byte) (int, error) { panic("get exploded") }
func (panickingStore) Iterator(int, int) Iterator   { panic("iterator exploded") }
func (panickingStore) Clean()                       { panic("clean exploded") }

type explodingIteratorStore struct {
	Store
	after int
}

func (s *explodingIteratorStore) Iterator(from, to int) Iterator {
	return &explodingIterator{Iterator: s.Store.Iterator(from, to), after: s.after}
}

type explodingIterator struct {
	Iterator
	after int
	calls int
}

func (it *explodingIterator) Next() bool {
	it.calls++
	if it.calls > it.after {
		panic("iterator exploded")
	}
	return it.Iterator.Next()
}

type failingStore struct {
	puts int
	gets int
}

var errDiskGone = errors.New("disk gone")

func (s *failingStore) Put(int, []byte) error {
	s.puts++
	return errDiskGone
}

func (s *failingStore) Get(int, []byte) (int, error) {
	s.gets++
	return 0, errDiskGone
}

func (s *failingStore) Iterator(int, int) Iterator { return emptyIterator{} }
func (s *failingStore) Clean()                     {}

func createLogger() *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(customFormatter)
	return logger
}
