package session

import (
	"context"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/sirupsen/logrus"
)

// heartbeatTolerance stretches the heartbeat interval before an idle
// counterparty is probed with a TestRequest.
const heartbeatTolerance = 1.2

// testRequestProbe tracks an outstanding TestRequest. It is satisfied by
// any frame received after it was sent.
type testRequestProbe struct {
	id       string
	sentAt   time.Time
	received uint64
}

func (s *Session) tickInterval() time.Duration {
	d := s.settings.HeartbeatInterval / 4
	if d > time.Second {
		d = time.Second
	}
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func (s *Session) timerLoop(ctx context.Context, c *connection, started time.Time) {
	ticker := s.clock.Ticker(s.tickInterval())
	defer ticker.Stop()

	shutdown := ctx.Done()
	var probe testRequestProbe
	for {
		select {
		case <-c.done:
			return
		case <-shutdown:
			shutdown = nil
			s.shutdown(c)
		case <-ticker.C:
			s.checkTimers(c, started, &probe)
		}
	}
}

// shutdown logs out when logged on and otherwise drops the connection.
func (s *Session) shutdown(c *connection) {
	s.mu.Lock()
	switch s.Status() {
	case ApplicationConnected:
		err := s.initiateLogoutLocked(c, "session shutdown")
		s.mu.Unlock()
		if err == nil {
			s.notify(InitiatedLogout, nil)
		}
	case InitiatedLogout:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		c.close(nil)
	}
}

func (s *Session) checkTimers(c *connection, started time.Time, probe *testRequestProbe) {
	now := s.clock.Now()
	switch s.Status() {
	case Connecting, LogonSent, AwaitingLogon:
		if now.Sub(started) >= s.settings.LogonTimeout {
			s.logger.WithField("session", s.label).Warn("no logon received in time")
			c.close(ErrLogonTimeout)
		}
	case InitiatedLogout:
		if now.Sub(time.Unix(0, c.logoutSentAt.Load())) >= s.settings.LogoutTimeout {
			s.logger.WithField("session", s.label).Warn("logout not acknowledged in time")
			c.close(nil)
		}
	case ApplicationConnected:
		s.checkHeartbeat(c, now, probe)
	}
}

func (s *Session) checkHeartbeat(c *connection, now time.Time, probe *testRequestProbe) {
	interval := s.heartbeatInterval()

	if probe.id != "" {
		if c.received.Load() != probe.received {
			*probe = testRequestProbe{}
		} else if now.Sub(probe.sentAt) >= interval {
			s.logger.WithFields(logrus.Fields{
				"session":   s.label,
				"testReqID": probe.id,
			}).Warn("test request not answered")
			c.close(ErrHeartbeatTimeout)
			return
		}
	}

	idle := now.Sub(time.Unix(0, c.lastReceived.Load()))
	if probe.id == "" && idle >= time.Duration(float64(interval)*heartbeatTolerance) {
		id := utils.NewTestRequestID()
		received := c.received.Load()
		sent := false
		s.mu.Lock()
		if s.Status() == ApplicationConnected {
			sent = s.sendTestRequestLocked(c, id) == nil
		}
		s.mu.Unlock()
		if sent {
			*probe = testRequestProbe{id: id, sentAt: now, received: received}
		}
		return
	}

	if now.Sub(time.Unix(0, c.lastSent.Load())) >= interval {
		s.mu.Lock()
		if s.Status() == ApplicationConnected {
			_ = s.sendHeartbeatLocked(c, nil)
		}
		s.mu.Unlock()
	}
}
