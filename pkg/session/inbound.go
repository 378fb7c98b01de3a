package session

import (
	"bytes"
	"fmt"

	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
)

// inbound is a decoded view of one frame. Instances are reused across
// frames and their views alias the frame last decoded.
type inbound struct {
	frame       []byte
	beginString codec.View
	msgType     codec.View
	seqNum      int
	possDup     bool
	sendingTime codec.View

	senderCompID codec.View
	senderSubID  codec.View
	targetCompID codec.View
	targetSubID  codec.View

	beginSeqNo         int
	endSeqNo           int
	newSeqNo           int
	gapFill            bool
	resetSeqNumFlag    bool
	heartBtInt         int
	nextExpectedSeqNum int
	testReqID          codec.View
	text               codec.View

	// body is the offset of the first field past the standard header and
	// bodyEnd the offset of the CheckSum field.
	body    int
	bodyEnd int

	parser codec.Parser
}

func (m *inbound) decode(frame []byte) error {
	*m = inbound{parser: m.parser}
	m.frame = frame

	start, end, err := codec.BodyBounds(frame)
	if err != nil {
		return err
	}
	m.bodyEnd = end
	m.body = end
	if first := bytes.IndexByte(frame, utils.SOH); first > 2 {
		m.beginString = codec.View(frame[2:first])
	}

	p := &m.parser
	p.Reset(frame[:end])
	seenSeqNum := false
	for p.Next() {
		tag := p.Tag()
		if m.body == end && p.Offset() >= start && !utils.IsHeaderTag(tag) {
			m.body = p.Offset()
		}
		switch tag {
		case utils.TagMsgType:
			m.msgType = p.Value()
		case utils.TagMsgSeqNum:
			if m.seqNum, err = p.Int(); err != nil {
				return err
			}
			seenSeqNum = true
		case utils.TagPossDupFlag:
			if m.possDup, err = p.Bool(); err != nil {
				return err
			}
		case utils.TagSendingTime:
			m.sendingTime = p.Value()
		case utils.TagSenderCompID:
			m.senderCompID = p.Value()
		case utils.TagSenderSubID:
			m.senderSubID = p.Value()
		case utils.TagTargetCompID:
			m.targetCompID = p.Value()
		case utils.TagTargetSubID:
			m.targetSubID = p.Value()
		case utils.TagBeginSeqNo:
			m.beginSeqNo, err = p.Int()
		case utils.TagEndSeqNo:
			m.endSeqNo, err = p.Int()
		case utils.TagNewSeqNo:
			m.newSeqNo, err = p.Int()
		case utils.TagGapFillFlag:
			m.gapFill, err = p.Bool()
		case utils.TagResetSeqNumFlag:
			m.resetSeqNumFlag, err = p.Bool()
		case utils.TagHeartBtInt:
			m.heartBtInt, err = p.Int()
		case utils.TagNextExpectedSeqNum:
			m.nextExpectedSeqNum, err = p.Int()
		case utils.TagTestReqID:
			m.testReqID = p.Value()
		case utils.TagText:
			m.text = p.Value()
		}
		if err != nil {
			return err
		}
	}
	if err := p.Err(); err != nil {
		return err
	}

	switch {
	case len(m.msgType) == 0:
		return fmt.Errorf("%w: 35", codec.ErrMissingTag)
	case !seenSeqNum:
		return fmt.Errorf("%w: 34", codec.ErrMissingTag)
	case len(m.senderCompID) == 0:
		return fmt.Errorf("%w: 49", codec.ErrMissingTag)
	case len(m.targetCompID) == 0:
		return fmt.Errorf("%w: 56", codec.ErrMissingTag)
	}
	return nil
}

func (m *inbound) is(msgType string) bool {
	return m.msgType.Equal(msgType)
}

func (m *inbound) isAdmin() bool {
	return utils.IsAdminMsgType(m.msgType)
}

// LogonSessionID decodes a Logon frame and returns the SessionID of the local
// side, that is with the counterparty's sender as target.
func LogonSessionID(frame []byte) (sessions.SessionID, error) {
	var m inbound
	if err := m.decode(frame); err != nil {
		return sessions.SessionID{}, err
	}
	if !m.is(utils.MsgTypeLogon) {
		return sessions.SessionID{}, fmt.Errorf("%w: first message has type %s", ErrCounterpartyLogon, m.msgType)
	}
	return sessions.SessionID{
		SenderCompID: m.targetCompID.String(),
		SenderSubID:  m.targetSubID.String(),
		TargetCompID: m.senderCompID.String(),
		TargetSubID:  m.senderSubID.String(),
	}, nil
}
