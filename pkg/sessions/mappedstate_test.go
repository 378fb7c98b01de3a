package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_mapped_state_survives_reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BANK-BROKER.state")

	s, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		s.ConsumeNextSenderSeqNum()
	}
	s.SetNextTargetSeqNum(9)
	s.SetLastConnectionTimestamp(1_700_000_000_123)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(StateFileSize), info.Size())
	assert.Equal(t, int64(35), info.Size())

	reopened, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 5, reopened.NextSenderSeqNum())
	assert.Equal(t, 9, reopened.NextTargetSeqNum())
	assert.Equal(t, int64(1_700_000_000_123), reopened.LastConnectionTimestamp())
}

func Test_mapped_state_returns_published_value_after_crash_before_index_flip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.state")

	s, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	s.SetNextSenderSeqNum(7)
	s.SetNextTargetSeqNum(3)
	s.SetLastConnectionTimestamp(1000)

	// The value cell is written but the process dies before the index byte
	// is flipped.
	s.sender.stage(8)
	s.target.stage(4)
	s.connection.stage(2000)
	require.NoError(t, s.Close())

	reopened, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 7, reopened.NextSenderSeqNum())
	assert.Equal(t, 3, reopened.NextTargetSeqNum())
	assert.Equal(t, int64(1000), reopened.LastConnectionTimestamp())
}

func Test_mapped_state_returns_new_value_once_index_is_published(t *testing.T) {
	path := filepath.Join(t.TempDir(), "published.state")

	s, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	s.SetNextSenderSeqNum(7)
	s.sender.publish(s.sender.stage(8))
	require.NoError(t, s.Close())

	reopened, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 8, reopened.NextSenderSeqNum())
}

func Test_mapped_state_refuses_corrupt_index_byte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.state")

	s, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[senderCellOffset] = 7
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = OpenMappedState(path, createLogger())
	assert.ErrorIs(t, err, ErrCorruptState)
}

func Test_mapped_state_refuses_unexpected_file_size(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.state")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2}, 0o644))

	_, err := OpenMappedState(path, createLogger())
	assert.ErrorIs(t, err, ErrInvalidStateFile)
}

func Test_mapped_state_fresh_file_layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.state")
	s, err := OpenMappedState(path, createLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, StateFileSize)
	for _, offset := range []int{timestampCellOffset, senderCellOffset, targetCellOffset} {
		assert.LessOrEqual(t, raw[offset], byte(1))
	}
	assert.Equal(t, 17, senderCellOffset)
	assert.Equal(t, 26, targetCellOffset)
}

func Test_mapped_state_flush_after_close_fails(t *testing.T) {
	s, err := OpenMappedState(filepath.Join(t.TempDir(), "closed.state"), createLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	assert.NoError(t, s.Close())
}

type countingState struct {
	*MemoryState
	flushes chan struct{}
}

func (c *countingState) Flush() error {
	c.flushes <- struct{}{}
	return nil
}

func Test_flusher_flushes_on_interval_and_on_shutdown(t *testing.T) {
	mock := clock.NewMock()
	state := &countingState{MemoryState: NewMemoryState(), flushes: make(chan struct{}, 16)}
	flusher := NewFlusher(state, time.Second, mock, createLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		flusher.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return len(state.flushes) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("flusher did not stop after cancellation")
	}
}

func createLogger() *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(customFormatter)
	return logger
}
