package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_checksum_wraps_modulo_256(t *testing.T) {
	msg := []byte("8=FIX.4.4\x019=5\x0135=0\x01")
	sum := 0
	for _, b := range msg {
		sum += int(b)
	}
	assert.Equal(t, sum%256, Checksum(msg))
}

func Test_append_checksum_pads_to_three_digits(t *testing.T) {
	assert.Equal(t, "007", string(AppendChecksum(nil, 7)))
	assert.Equal(t, "042", string(AppendChecksum(nil, 42)))
	assert.Equal(t, "255", string(AppendChecksum(nil, 255)))
}

func Test_admin_msg_types_are_recognised(t *testing.T) {
	for _, msgType := range []string{"0", "1", "2", "4", "5", "A"} {
		assert.True(t, IsAdminMsgType([]byte(msgType)), msgType)
	}
	assert.False(t, IsAdminMsgType([]byte(MsgTypeReject)))
	assert.False(t, IsAdminMsgType([]byte("D")))
	assert.False(t, IsAdminMsgType([]byte("AE")))
}
