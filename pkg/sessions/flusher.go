package sessions

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Flusher periodically forces a State to stable storage. Counter updates are
// already crash-atomic on their own; flushing bounds how much progress an OS
// crash or power loss can take back.
type Flusher struct {
	state    State
	interval time.Duration
	clock    clock.Clock
	logger   *logrus.Logger
}

func NewFlusher(state State, interval time.Duration, clk clock.Clock, logger *logrus.Logger) *Flusher {
	return &Flusher{
		state:    state,
		interval: interval,
		clock:    clk,
		logger:   logger,
	}
}

// Run flushes every interval until ctx is cancelled, then flushes one last
// time.
func (f *Flusher) Run(ctx context.Context) {
	ticker := f.clock.Ticker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

func (f *Flusher) flush() {
	if err := f.state.Flush(); err != nil {
		f.logger.Warn("failed to flush session state: ", err)
	}
}
