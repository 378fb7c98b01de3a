package utils

// Field separator.
const SOH byte = 0x01

// Standard header and trailer tags managed by the session engine.
const (
	TagBeginString        = 8
	TagBodyLength         = 9
	TagCheckSum           = 10
	TagMsgSeqNum          = 34
	TagMsgType            = 35
	TagPossDupFlag        = 43
	TagSenderCompID       = 49
	TagSenderSubID        = 50
	TagSendingTime        = 52
	TagTargetCompID       = 56
	TagTargetSubID        = 57
	TagPossResend         = 97
	TagOrigSendingTime    = 122
	TagText               = 58
	TagBeginSeqNo         = 7
	TagEndSeqNo           = 16
	TagNewSeqNo           = 36
	TagRefSeqNum          = 45
	TagEncryptMethod      = 98
	TagHeartBtInt         = 108
	TagTestReqID          = 112
	TagGapFillFlag        = 123
	TagResetSeqNumFlag    = 141
	TagNextExpectedSeqNum = 789
)

// Session-level message types.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
)

const (
	DefaultBeginString = "FIX.4.4"
	EncryptMethodNone  = 0
)

// IsHeaderTag reports whether tag belongs to the standard header. Frames
// resent with PossDup have their header rebuilt and their body copied as is.
func IsHeaderTag(tag int) bool {
	switch tag {
	case TagBeginString, TagBodyLength, TagMsgType, TagMsgSeqNum, TagPossDupFlag,
		TagSenderCompID, TagSenderSubID, TagSendingTime, TagTargetCompID,
		TagTargetSubID, TagPossResend, TagOrigSendingTime:
		return true
	}
	return false
}

// IsAdminMsgType reports whether a message type is session-level. Admin
// messages are never resent verbatim; Reject is the exception and is treated
// like application data.
func IsAdminMsgType(msgType []byte) bool {
	if len(msgType) != 1 {
		return false
	}
	switch msgType[0] {
	case '0', '1', '2', '4', '5', 'A':
		return true
	}
	return false
}

var msgTypeNames = map[string]string{
	MsgTypeHeartbeat:     "Heartbeat",
	MsgTypeTestRequest:   "TestRequest",
	MsgTypeResendRequest: "ResendRequest",
	MsgTypeReject:        "Reject",
	MsgTypeSequenceReset: "SequenceReset",
	MsgTypeLogout:        "Logout",
	MsgTypeLogon:         "Logon",
}

func MsgTypeName(msgType string) string {
	name, exists := msgTypeNames[msgType]
	if exists {
		return name
	}
	return "Application"
}
