package msgstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// FailSafeSettings tune the breaker guarding the wrapped store.
type FailSafeSettings struct {
	// TripAfter is the number of consecutive failures that opens the breaker.
	TripAfter uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

func DefaultFailSafeSettings() FailSafeSettings {
	return FailSafeSettings{
		TripAfter:   5,
		OpenTimeout: 30 * time.Second,
	}
}

// FailSafe decorates a Store so that its failures, including panics, never
// reach the session. A failed Put is logged and dropped, a failed Get
// reports NotFound and a failed iteration ends early. Each of these degrades
// to gap fills when resend requests are serviced.
type FailSafe struct {
	name    string
	store   Store
	breaker *gobreaker.CircuitBreaker[int]
	logger  *logrus.Logger
}

func NewFailSafe(name string, store Store, settings FailSafeSettings, logger *logrus.Logger) *FailSafe {
	tripAfter := settings.TripAfter
	if tripAfter == 0 {
		tripAfter = 1
	}
	breaker := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"store": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("message store breaker changed state")
		},
	})
	return &FailSafe{
		name:    name,
		store:   store,
		breaker: breaker,
		logger:  logger,
	}
}

func (f *FailSafe) Put(seqNum int, msg []byte) error {
	_, err := f.breaker.Execute(func() (n int, err error) {
		defer recoverInto(&err)
		return 0, f.store.Put(seqNum, msg)
	})
	if err != nil {
		f.fail("put", seqNum, err)
	}
	return nil
}

func (f *FailSafe) Get(seqNum int, dst []byte) (int, error) {
	n, err := f.breaker.Execute(func() (n int, err error) {
		defer recoverInto(&err)
		return f.store.Get(seqNum, dst)
	})
	if err != nil {
		f.fail("get", seqNum, err)
		return NotFound, nil
	}
	return n, nil
}

func (f *FailSafe) Iterator(from, to int) Iterator {
	var it Iterator
	_, err := f.breaker.Execute(func() (n int, err error) {
		defer recoverInto(&err)
		it = f.store.Iterator(from, to)
		return 0, nil
	})
	if err != nil || it == nil {
		f.fail("iterator", from, err)
		return emptyIterator{}
	}
	return &failSafeIterator{owner: f, it: it}
}

func (f *FailSafe) Clean() {
	_, err := f.breaker.Execute(func() (n int, err error) {
		defer recoverInto(&err)
		f.store.Clean()
		return 0, nil
	})
	if err != nil {
		f.fail("clean", 0, err)
	}
}

func (f *FailSafe) fail(op string, seqNum int, err error) {
	metrics.StoreFailuresTotal.WithLabelValues(f.name, op).Inc()
	entry := f.logger.WithFields(logrus.Fields{
		"store":  f.name,
		"op":     op,
		"seqNum": seqNum,
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		entry.Debug("message store unavailable, breaker open")
		return
	}
	entry.WithError(err).Error("message store failure")
}

type failSafeIterator struct {
	owner *FailSafe
	it    Iterator
	done  bool
}

func (i *failSafeIterator) Next() bool {
	if i.done {
		return false
	}
	more, err := i.owner.breaker.Execute(func() (n int, err error) {
		defer recoverInto(&err)
		if i.it.Next() {
			return 1, nil
		}
		return 0, i.it.Err()
	})
	if err != nil {
		i.owner.fail("next", i.it.SeqNum(), err)
		i.done = true
		return false
	}
	if more == 0 {
		i.done = true
		return false
	}
	return true
}

func (i *failSafeIterator) SeqNum() int {
	return i.it.SeqNum()
}

func (i *failSafeIterator) Message() []byte {
	return i.it.Message()
}

// Err is always nil: failures are absorbed and end the iteration.
func (i *failSafeIterator) Err() error {
	return nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("msgstore: panic: %v", r)
	}
}

var _ Store = (*FailSafe)(nil)
