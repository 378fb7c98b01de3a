package session

import (
	"bytes"

	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/sirupsen/logrus"
)

// MessageLog receives every raw frame sent or received. buf[offset:offset+length]
// is only valid during the call.
type MessageLog interface {
	Log(inbound bool, buf []byte, offset, length int)
}

type noopMessageLog struct{}

func (noopMessageLog) Log(bool, []byte, int, int) {}

// LoggerMessageLog writes traffic to a logrus logger at debug level with SOH
// shown as '|'.
type LoggerMessageLog struct {
	logger  *logrus.Logger
	session string
}

func NewLoggerMessageLog(logger *logrus.Logger, session string) *LoggerMessageLog {
	return &LoggerMessageLog{logger: logger, session: session}
}

func (l *LoggerMessageLog) Log(inbound bool, buf []byte, offset, length int) {
	if !l.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	direction := "out"
	if inbound {
		direction = "in"
	}
	printable := bytes.ReplaceAll(buf[offset:offset+length], []byte{utils.SOH}, []byte{'|'})
	l.logger.WithFields(logrus.Fields{
		"session":   l.session,
		"direction": direction,
	}).Debug(string(printable))
}

// logMessage shields the protocol from a misbehaving MessageLog.
func (s *Session) logMessage(inbound bool, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("session", s.id.String()).Warn("message log panicked: ", r)
		}
	}()
	s.messageLog.Log(inbound, frame, 0, len(frame))
}
