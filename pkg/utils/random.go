package utils

import "github.com/google/uuid"

// NewTestRequestID produces the TestReqID carried by a TestRequest and echoed
// back by the counterparty's Heartbeat.
func NewTestRequestID() string {
	return uuid.NewString()
}
