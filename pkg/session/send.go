package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/sirupsen/logrus"
)

// headerReserve covers the engine managed fields around a body.
const headerReserve = 160

// Send stamps the builder's fields with the next sequence number and the
// engine managed header, stores the frame for resends and writes it.
func (s *Session) Send(msgType string, body *codec.Builder) error {
	return s.SendBody(msgType, body.Bytes())
}

// SendBody is Send for pre-assembled body fields, which must end with SOH.
func (s *Session) SendBody(msgType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.Status() != ApplicationConnected {
		return ErrNotLoggedOn
	}
	_, err := s.sendLocked(s.conn, msgType, body)
	return err
}

// Logout starts the logout handshake. The connection closes when the
// counterparty answers or the logout timeout expires.
func (s *Session) Logout(text string) error {
	s.mu.Lock()
	if s.conn == nil || s.Status() != ApplicationConnected {
		s.mu.Unlock()
		return ErrNotLoggedOn
	}
	err := s.initiateLogoutLocked(s.conn, text)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(InitiatedLogout, nil)
	return nil
}

func (s *Session) initiateLogoutLocked(c *connection, text string) error {
	if err := s.sendLogoutLocked(c, text); err != nil {
		return err
	}
	c.logoutSentAt.Store(s.clock.Now().UnixNano())
	s.status.Store(int32(InitiatedLogout))
	return nil
}

// sendLocked consumes the next sender sequence number for a new message.
func (s *Session) sendLocked(c *connection, msgType string, body []byte) (int, error) {
	if len(body)+headerReserve > s.settings.OutboundBufferSize {
		return 0, fmt.Errorf("%w: %d byte body", ErrMessageTooLarge, len(body))
	}
	seqNum := s.state.ConsumeNextSenderSeqNum()
	s.metricSeqNums()
	return seqNum, s.writeLocked(c, msgType, seqNum, false, nil, body, true)
}

// writeLocked frames and writes one message. Resent messages and gap fills
// reuse an existing sequence number and are not stored again.
func (s *Session) writeLocked(c *connection, msgType string, seqNum int, possDup bool, origSendingTime []byte, body []byte, store bool) error {
	now := s.clock.Now()

	fields := s.scratch[:0]
	fields = appendField(fields, utils.TagMsgType, msgType)
	fields = append(fields, "34="...)
	fields = strconv.AppendInt(fields, int64(seqNum), 10)
	fields = append(fields, utils.SOH)
	if possDup {
		fields = appendField(fields, utils.TagPossDupFlag, "Y")
	}
	fields = appendField(fields, utils.TagSenderCompID, s.id.SenderCompID)
	if s.id.SenderSubID != "" {
		fields = appendField(fields, utils.TagSenderSubID, s.id.SenderSubID)
	}
	fields = append(fields, "52="...)
	fields = codec.AppendTimestamp(fields, now)
	fields = append(fields, utils.SOH)
	fields = appendField(fields, utils.TagTargetCompID, s.id.TargetCompID)
	if s.id.TargetSubID != "" {
		fields = appendField(fields, utils.TagTargetSubID, s.id.TargetSubID)
	}
	if possDup {
		// Gap fills have no original to point at and repeat SendingTime.
		fields = append(fields, "122="...)
		if len(origSendingTime) > 0 {
			fields = append(fields, origSendingTime...)
		} else {
			fields = codec.AppendTimestamp(fields, now)
		}
		fields = append(fields, utils.SOH)
	}
	fields = append(fields, body...)
	s.scratch = fields

	s.out = codec.AppendFrame(s.out[:0], s.settings.BeginString, fields)
	frame := s.out

	if store {
		if err := s.store.Put(seqNum, frame); err != nil {
			s.logger.WithFields(logrus.Fields{
				"session": s.label,
				"seqNum":  seqNum,
			}).WithError(err).Error("failed to store outbound message")
		}
	}

	if _, err := c.rw.Write(frame); err != nil {
		cause := fmt.Errorf("%w: %v", ErrConnectionLost, err)
		c.close(cause)
		return cause
	}
	c.lastSent.Store(now.UnixNano())
	s.state.SetLastSentTimestamp(now.UnixMilli())
	s.logMessage(false, frame)
	metrics.MessagesTotal.WithLabelValues(s.label, metrics.DirectionOut, utils.MsgTypeName(msgType)).Inc()
	metrics.BytesTotal.WithLabelValues(s.label, metrics.DirectionOut).Add(float64(len(frame)))
	return nil
}

func appendField(dst []byte, tag int, value string) []byte {
	dst = strconv.AppendInt(dst, int64(tag), 10)
	dst = append(dst, '=')
	dst = append(dst, value...)
	return append(dst, utils.SOH)
}

func (s *Session) metricSeqNums() {
	metrics.SequenceNumbers.WithLabelValues(s.label, "sender").Set(float64(s.state.NextSenderSeqNum()))
	metrics.SequenceNumbers.WithLabelValues(s.label, "target").Set(float64(s.state.NextTargetSeqNum()))
}

func (s *Session) sendLogonLocked(c *connection, reset bool) (int, error) {
	b := s.builder.Clear().
		AddEnumInt(utils.TagEncryptMethod, utils.EncryptMethodNone).
		AddInt(utils.TagHeartBtInt, int(s.heartbeatInterval().Seconds()))
	if reset {
		b.AddBool(utils.TagResetSeqNumFlag, true)
	}
	if s.settings.SendNextExpectedSeqNum {
		b.AddInt(utils.TagNextExpectedSeqNum, s.state.NextTargetSeqNum())
	}
	return s.sendLocked(c, utils.MsgTypeLogon, b.Bytes())
}

func (s *Session) sendHeartbeatLocked(c *connection, testReqID []byte) error {
	b := s.builder.Clear()
	if len(testReqID) > 0 {
		b.AddBytes(utils.TagTestReqID, testReqID)
	}
	_, err := s.sendLocked(c, utils.MsgTypeHeartbeat, b.Bytes())
	return err
}

func (s *Session) sendTestRequestLocked(c *connection, testReqID string) error {
	b := s.builder.Clear().AddString(utils.TagTestReqID, testReqID)
	_, err := s.sendLocked(c, utils.MsgTypeTestRequest, b.Bytes())
	return err
}

func (s *Session) sendResendRequestLocked(c *connection, begin, end int) error {
	b := s.builder.Clear().
		AddInt(utils.TagBeginSeqNo, begin).
		AddInt(utils.TagEndSeqNo, end)
	_, err := s.sendLocked(c, utils.MsgTypeResendRequest, b.Bytes())
	if err == nil {
		metrics.ResendRequestsTotal.WithLabelValues(s.label, metrics.DirectionOut).Inc()
	}
	return err
}

func (s *Session) sendLogoutLocked(c *connection, text string) error {
	b := s.builder.Clear()
	if text != "" {
		b.AddString(utils.TagText, text)
	}
	_, err := s.sendLocked(c, utils.MsgTypeLogout, b.Bytes())
	return err
}

// sendGapFillLocked tells the counterparty to skip from seqNum to newSeqNo.
// It reuses seqNum rather than consuming a new one.
func (s *Session) sendGapFillLocked(c *connection, seqNum, newSeqNo int) error {
	b := s.builder.Clear().
		AddBool(utils.TagGapFillFlag, true).
		AddInt(utils.TagNewSeqNo, newSeqNo)
	metrics.GapFillsTotal.WithLabelValues(s.label).Inc()
	return s.writeLocked(c, utils.MsgTypeSequenceReset, seqNum, true, nil, b.Bytes(), false)
}

func (s *Session) heartbeatInterval() time.Duration {
	return time.Duration(s.heartbeat.Load())
}
