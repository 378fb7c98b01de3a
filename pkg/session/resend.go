package session

import (
	"github.com/fr3shw3b/fix-session-engine/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// serviceResend answers a resend request for [begin, end], end 0 meaning
// the latest message sent. Stored application messages are resent with
// PossDup and their original SendingTime. Admin messages and messages no
// longer in the store are covered by gap fills.
func (s *Session) serviceResend(c *connection, begin, end int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.state.NextSenderSeqNum() - 1
	if end == 0 || end > last {
		end = last
	}
	if begin < 1 {
		begin = 1
	}
	if begin > end {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"session": s.label,
		"begin":   begin,
		"end":     end,
	}).Info("servicing resend request")

	gapFrom := begin
	it := s.store.Iterator(begin, end)
	for it.Next() {
		seqNum := it.SeqNum()
		stored := &s.resent
		if err := stored.decode(it.Message()); err != nil || stored.seqNum != seqNum || stored.isAdmin() {
			continue
		}
		if seqNum > gapFrom {
			if err := s.sendGapFillLocked(c, gapFrom, seqNum); err != nil {
				return err
			}
		}
		err := s.writeLocked(c, string(stored.msgType), seqNum, true, stored.sendingTime, stored.frame[stored.body:stored.bodyEnd], false)
		if err != nil {
			return err
		}
		metrics.ResentMessagesTotal.WithLabelValues(s.label).Inc()
		gapFrom = seqNum + 1
	}
	if err := it.Err(); err != nil {
		s.logger.WithField("session", s.label).WithError(err).Warn("message store iteration failed")
	}
	if gapFrom <= end {
		return s.sendGapFillLocked(c, gapFrom, end+1)
	}
	return nil
}
