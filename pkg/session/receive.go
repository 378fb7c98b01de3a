package session

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/sirupsen/logrus"
)

func (s *Session) readLoop(c *connection, logon []byte) {
	if logon != nil {
		if err := s.onFrame(c, logon); err != nil {
			c.close(err)
			return
		}
	}
	for {
		select {
		case <-c.done:
			return
		default:
		}

		frame, err := c.reader.ReadFrame()
		if err != nil {
			c.close(s.readError(c, err))
			return
		}
		if err := s.onFrame(c, frame); err != nil {
			c.close(err)
			return
		}
	}
}

func (s *Session) readError(c *connection, err error) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	switch {
	case errors.Is(err, io.EOF) && s.Status() == InitiatedLogout:
		return nil
	case errors.Is(err, codec.ErrGarbled),
		errors.Is(err, codec.ErrBadBodyLength),
		errors.Is(err, codec.ErrBadChecksum),
		errors.Is(err, codec.ErrFrameTooLarge):
		return protocolError(nil, "unreadable frame", err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

func (s *Session) onFrame(c *connection, frame []byte) error {
	now := s.clock.Now()
	c.received.Add(1)
	c.lastReceived.Store(now.UnixNano())
	s.state.SetLastReceivedTimestamp(now.UnixMilli())
	s.logMessage(true, frame)
	metrics.BytesTotal.WithLabelValues(s.label, metrics.DirectionIn).Add(float64(len(frame)))

	m := &s.in
	if err := m.decode(frame); err != nil {
		return protocolError(nil, "malformed message", err)
	}
	metrics.MessagesTotal.WithLabelValues(s.label, metrics.DirectionIn, utils.MsgTypeName(string(m.msgType))).Inc()

	if err := s.validateHeader(c, m); err != nil {
		return err
	}
	if !c.loggedOn.Load() {
		if !m.is(utils.MsgTypeLogon) {
			return protocolError(m, "first message is not a logon", nil)
		}
		if err := s.onLogon(c, m); err != nil {
			return err
		}
	} else if err := s.handle(c, m); err != nil {
		return err
	}
	return s.drainQueue(c)
}

func (s *Session) validateHeader(c *connection, m *inbound) error {
	var reason string
	switch {
	case !m.beginString.Equal(s.settings.BeginString):
		reason = fmt.Sprintf("BeginString %s does not match %s", m.beginString, s.settings.BeginString)
	case !m.senderCompID.Equal(s.id.TargetCompID) || !m.senderSubID.Equal(s.id.TargetSubID):
		reason = fmt.Sprintf("CompID problem: unexpected sender %s/%s", m.senderCompID, m.senderSubID)
	case !m.targetCompID.Equal(s.id.SenderCompID) || !m.targetSubID.Equal(s.id.SenderSubID):
		reason = fmt.Sprintf("CompID problem: unexpected target %s/%s", m.targetCompID, m.targetSubID)
	default:
		return nil
	}
	if !c.loggedOn.Load() {
		return protocolError(m, reason, nil)
	}
	return s.fatal(c, m, reason)
}

// fatal logs out with text and returns the error that ends the connection.
func (s *Session) fatal(c *connection, m *inbound, text string) error {
	s.mu.Lock()
	if err := s.sendLogoutLocked(c, text); err != nil {
		s.logger.WithField("session", s.label).WithError(err).Debug("failed to send logout")
	}
	s.mu.Unlock()
	return protocolError(m, text, nil)
}

func (s *Session) onLogon(c *connection, m *inbound) error {
	if s.role == Acceptor && m.heartBtInt > 0 {
		s.heartbeat.Store(int64(time.Duration(m.heartBtInt) * time.Second))
	}

	s.mu.Lock()
	reset := m.resetSeqNumFlag
	if s.role == Acceptor {
		if reset || s.settings.ResetSeqNumsOnLogon {
			s.resetLocked()
			reset = true
		}
	} else if reset && !s.settings.ResetSeqNumsOnLogon {
		s.logger.WithField("session", s.label).Info("counterparty reset its sequence numbers")
		s.state.SetNextTargetSeqNum(1)
	}

	expected := s.state.NextTargetSeqNum()
	if m.seqNum < expected {
		text := tooLowText(expected, m.seqNum)
		if err := s.sendLogoutLocked(c, text); err != nil {
			s.logger.WithField("session", s.label).WithError(err).Debug("failed to send logout")
		}
		s.mu.Unlock()
		return protocolError(m, text, nil)
	}
	inSequence := m.seqNum == expected
	if inSequence {
		s.state.ConsumeNextTargetSeqNum()
	}

	// threshold is the sequence number the counterparty should name as the
	// next it expects from us.
	threshold := s.state.NextSenderSeqNum()
	if s.role == Acceptor {
		logonSeqNum, err := s.sendLogonLocked(c, reset)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		threshold = logonSeqNum
	}
	s.status.Store(int32(ApplicationConnected))
	c.loggedOn.Store(true)
	s.mu.Unlock()

	s.state.SetLastConnectionTimestamp(s.clock.Now().UnixMilli())
	s.logger.WithFields(logrus.Fields{
		"session":   s.label,
		"heartbeat": s.heartbeatInterval().String(),
		"reset":     reset,
	}).Info("logged on")

	if next := m.nextExpectedSeqNum; next > 0 {
		if next > threshold {
			return s.fatal(c, m, fmt.Sprintf("NextExpectedMsgSeqNum %d higher than expected %d", next, threshold))
		}
		if next < threshold {
			if err := s.serviceResend(c, next, threshold-1); err != nil {
				return err
			}
		}
	}

	if !inSequence {
		if s.settings.SendNextExpectedSeqNum && m.nextExpectedSeqNum > 0 {
			// The counterparty learnt what we expect from our Logon and
			// resends on its own.
			s.resendEnd = m.seqNum - 1
		} else if err := s.requestResend(c, expected, m.seqNum-1); err != nil {
			return err
		}
		s.enqueue(m.seqNum, queued{processed: true})
	}

	s.notify(ApplicationConnected, nil)
	return nil
}

// handle applies the sequence rules to a message received after logon.
func (s *Session) handle(c *connection, m *inbound) error {
	expected := s.state.NextTargetSeqNum()

	if m.is(utils.MsgTypeSequenceReset) && !m.gapFill {
		return s.onSequenceReset(c, m, expected)
	}

	switch {
	case m.seqNum == expected:
		return s.process(c, m, expected)
	case m.seqNum > expected:
		return s.onGap(c, m, expected)
	case m.possDup:
		s.logger.WithFields(logrus.Fields{
			"session":  s.label,
			"seqNum":   m.seqNum,
			"expected": expected,
		}).Debug("ignoring possible duplicate")
		return nil
	default:
		return s.fatal(c, m, tooLowText(expected, m.seqNum))
	}
}

func tooLowText(expected, received int) string {
	return fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, received)
}

// process handles an in-sequence message.
func (s *Session) process(c *connection, m *inbound, expected int) error {
	switch {
	case m.is(utils.MsgTypeHeartbeat):
		s.state.ConsumeNextTargetSeqNum()

	case m.is(utils.MsgTypeTestRequest):
		s.state.ConsumeNextTargetSeqNum()
		s.mu.Lock()
		err := s.sendHeartbeatLocked(c, m.testReqID)
		s.mu.Unlock()
		if err != nil {
			return err
		}

	case m.is(utils.MsgTypeResendRequest):
		s.state.ConsumeNextTargetSeqNum()
		metrics.ResendRequestsTotal.WithLabelValues(s.label, metrics.DirectionIn).Inc()
		if err := s.serviceResend(c, m.beginSeqNo, m.endSeqNo); err != nil {
			return err
		}

	case m.is(utils.MsgTypeSequenceReset):
		if m.newSeqNo > expected {
			if err := s.state.ResetNextTargetSeqNum(m.newSeqNo); err != nil {
				return s.fatal(c, m, err.Error())
			}
		} else {
			s.logger.WithFields(logrus.Fields{
				"session":  s.label,
				"seqNum":   m.seqNum,
				"newSeqNo": m.newSeqNo,
			}).Warn("gap fill does not move the sequence forward")
			s.state.ConsumeNextTargetSeqNum()
		}

	case m.is(utils.MsgTypeLogout):
		s.state.ConsumeNextTargetSeqNum()
		return s.onLogout(c, m)

	case m.is(utils.MsgTypeLogon):
		return s.fatal(c, m, "unexpected Logon while logged on")

	default:
		if m.is(utils.MsgTypeReject) {
			s.logger.WithFields(logrus.Fields{
				"session": s.label,
				"seqNum":  m.seqNum,
				"text":    m.text.String(),
			}).Warn("counterparty rejected a message")
		}
		s.dispatch(m)
		s.state.ConsumeNextTargetSeqNum()
	}

	s.recoveryProgress()
	return nil
}

func (s *Session) onLogout(c *connection, m *inbound) error {
	fields := logrus.Fields{"session": s.label, "text": m.text.String()}
	if s.Status() == InitiatedLogout {
		s.logger.WithFields(fields).Info("logout confirmed")
		c.close(nil)
		return nil
	}
	s.logger.WithFields(fields).Info("counterparty logged out")
	s.mu.Lock()
	err := s.sendLogoutLocked(c, "")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	c.close(nil)
	return nil
}

// onSequenceReset handles the reset mode, which ignores MsgSeqNum.
func (s *Session) onSequenceReset(c *connection, m *inbound, expected int) error {
	switch {
	case m.newSeqNo > expected:
		if err := s.state.ResetNextTargetSeqNum(m.newSeqNo); err != nil {
			return s.fatal(c, m, err.Error())
		}
		s.logger.WithFields(logrus.Fields{
			"session":  s.label,
			"newSeqNo": m.newSeqNo,
		}).Info("target sequence reset")
	case m.newSeqNo == expected:
		s.logger.WithFields(logrus.Fields{
			"session":  s.label,
			"newSeqNo": m.newSeqNo,
		}).Warn("SequenceReset does not move the target sequence number")
	default:
		return s.fatal(c, m, fmt.Sprintf("SequenceReset NewSeqNo %d below expected %d", m.newSeqNo, expected))
	}
	s.recoveryProgress()
	return nil
}

// onGap handles a message ahead of the expected sequence number.
func (s *Session) onGap(c *connection, m *inbound, expected int) error {
	if m.is(utils.MsgTypeLogout) {
		return s.onLogout(c, m)
	}

	processed := false
	if m.is(utils.MsgTypeResendRequest) {
		metrics.ResendRequestsTotal.WithLabelValues(s.label, metrics.DirectionIn).Inc()
		if err := s.serviceResend(c, m.beginSeqNo, m.endSeqNo); err != nil {
			return err
		}
		processed = true
	}

	if err := s.requestResend(c, expected, m.seqNum-1); err != nil {
		return err
	}

	switch {
	case processed:
		s.enqueue(m.seqNum, queued{processed: true})
	case !s.settings.QueueOutOfOrder:
		// Delivered again by the resend.
	case s.queuedBytes+len(m.frame) > s.maxQueuedBytes():
		s.logger.WithFields(logrus.Fields{
			"session": s.label,
			"seqNum":  m.seqNum,
		}).Debug("out of order queue full, awaiting resend")
	default:
		s.enqueue(m.seqNum, queued{frame: append([]byte(nil), m.frame...)})
	}
	return nil
}

// maxQueuedBytes bounds the frames held back while a gap is open.
func (s *Session) maxQueuedBytes() int {
	return maxQueuedFrames * s.settings.InboundBufferSize
}

func (s *Session) enqueue(seqNum int, q queued) {
	s.dequeue(seqNum)
	s.queue[seqNum] = q
	s.queuedBytes += len(q.frame)
}

func (s *Session) dequeue(seqNum int) {
	if q, ok := s.queue[seqNum]; ok {
		s.queuedBytes -= len(q.frame)
		delete(s.queue, seqNum)
	}
}

// requestResend asks for [expected, end] minus what an earlier request or
// the queue already covers.
func (s *Session) requestResend(c *connection, expected, end int) error {
	begin := expected
	if s.resendEnd >= begin {
		begin = s.resendEnd + 1
	}
	for begin <= end {
		if _, ok := s.queue[begin]; !ok {
			break
		}
		begin++
	}
	if begin > end {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"session": s.label,
		"begin":   begin,
		"end":     end,
	}).Info("sequence gap detected, requesting resend")
	s.mu.Lock()
	err := s.sendResendRequestLocked(c, begin, end)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if end > s.resendEnd {
		s.resendEnd = end
	}
	return nil
}

func (s *Session) recoveryProgress() {
	if s.resendEnd != 0 && s.state.NextTargetSeqNum() > s.resendEnd {
		s.logger.WithField("session", s.label).Info("sequence gap filled")
		s.resendEnd = 0
	}
}

// drainQueue replays queued messages once they are next in sequence.
func (s *Session) drainQueue(c *connection) error {
	for len(s.queue) > 0 {
		select {
		case <-c.done:
			return nil
		default:
		}

		next := s.state.NextTargetSeqNum()
		for seqNum := range s.queue {
			if seqNum < next {
				s.dequeue(seqNum)
			}
		}
		q, ok := s.queue[next]
		if !ok {
			return nil
		}
		s.dequeue(next)

		if q.processed {
			s.state.ConsumeNextTargetSeqNum()
			s.recoveryProgress()
			continue
		}
		if err := s.replay.decode(q.frame); err != nil {
			return protocolError(nil, "malformed queued message", err)
		}
		if err := s.handle(c, &s.replay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) dispatch(m *inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"session": s.label,
				"seqNum":  m.seqNum,
			}).Error("message handler panicked: ", r)
		}
	}()
	s.handler.OnMessage(s, Message{
		MsgType: m.msgType,
		SeqNum:  m.seqNum,
		PossDup: m.possDup,
		Frame:   m.frame,
		Body:    m.frame[m.body:m.bodyEnd],
	})
}
