package sessions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stateFactories runs the shared contract tests against every implementation.
func stateFactories(t *testing.T) map[string]func() State {
	return map[string]func() State{
		"memory": func() State { return NewMemoryState() },
		"mapped": func() State {
			s, err := OpenMappedState(t.TempDir()+"/state", createLogger())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func Test_consume_returns_one_two_three_in_call_order(t *testing.T) {
	for name, factory := range stateFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for want := 1; want <= 50; want++ {
				assert.Equal(t, want, s.ConsumeNextSenderSeqNum())
			}
			assert.Equal(t, 51, s.NextSenderSeqNum())

			assert.Equal(t, 1, s.ConsumeNextTargetSeqNum())
			assert.Equal(t, 2, s.NextTargetSeqNum())
		})
	}
}

func Test_reset_next_target_only_moves_forward(t *testing.T) {
	for name, factory := range stateFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			s.SetNextTargetSeqNum(10)

			for _, v := range []int{-1, 0, 1, 9, 10} {
				err := s.ResetNextTargetSeqNum(v)
				assert.ErrorIs(t, err, ErrResetBelowCurrent, "reset to %d", v)
				assert.Equal(t, 10, s.NextTargetSeqNum())
			}

			require.NoError(t, s.ResetNextTargetSeqNum(11))
			assert.Equal(t, 11, s.NextTargetSeqNum())
			require.NoError(t, s.ResetNextTargetSeqNum(500))
			assert.Equal(t, 500, s.NextTargetSeqNum())
		})
	}
}

func Test_reset_next_seq_nums_returns_both_counters_to_one(t *testing.T) {
	for name, factory := range stateFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			s.SetNextSenderSeqNum(42)
			s.SetNextTargetSeqNum(17)
			s.ResetNextSeqNums()
			assert.Equal(t, 1, s.NextSenderSeqNum())
			assert.Equal(t, 1, s.NextTargetSeqNum())
		})
	}
}

func Test_timestamps_start_unknown(t *testing.T) {
	for name, factory := range stateFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			assert.Equal(t, UnknownTimestamp, s.LastConnectionTimestamp())
			assert.Equal(t, UnknownTimestamp, s.LastReceivedTimestamp())
			assert.Equal(t, UnknownTimestamp, s.LastSentTimestamp())

			s.SetLastConnectionTimestamp(1_700_000_000_000)
			s.SetLastReceivedTimestamp(1_700_000_000_001)
			s.SetLastSentTimestamp(1_700_000_000_002)
			assert.Equal(t, int64(1_700_000_000_000), s.LastConnectionTimestamp())
			assert.Equal(t, int64(1_700_000_000_001), s.LastReceivedTimestamp())
			assert.Equal(t, int64(1_700_000_000_002), s.LastSentTimestamp())
		})
	}
}

func Test_concurrent_consumers_never_observe_the_same_value(t *testing.T) {
	for name, factory := range stateFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			var mu sync.Mutex
			seen := map[int]bool{}
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 250; i++ {
						v := s.ConsumeNextSenderSeqNum()
						mu.Lock()
						seen[v] = true
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Len(t, seen, 2000)
			assert.Equal(t, 2001, s.NextSenderSeqNum())
		})
	}
}
