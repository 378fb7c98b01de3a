package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/config"
	"github.com/fr3shw3b/fix-session-engine/pkg/schedule"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		SessionID:     sessions.SessionID{SenderCompID: "BANK", TargetCompID: "BROKER"},
		Settings:      session.DefaultSettings(),
		Schedule:      schedule.Always{},
		StoreCapacity: 4096,
		FlushInterval: 10 * time.Millisecond,
	}
}

func Test_open_keeps_sequence_numbers_in_the_state_file(t *testing.T) {
	conf := testConfig()
	conf.StateFile = filepath.Join(t.TempDir(), "bank.state")
	logger := NewLogger("debug")

	rt, err := Open(conf, session.Initiator, logger, clock.New())
	require.NoError(t, err)
	_, mapped := rt.State.(*sessions.MappedState)
	assert.True(t, mapped)
	assert.Equal(t, conf.SessionID, rt.Session.ID())
	rt.State.SetNextSenderSeqNum(42)
	require.NoError(t, rt.Close())

	rt, err = Open(conf, session.Initiator, logger, clock.New())
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, 42, rt.Session.State().NextSenderSeqNum())
}

func Test_open_rejects_invalid_settings(t *testing.T) {
	conf := testConfig()
	conf.Settings.HeartbeatInterval = 0

	_, err := Open(conf, session.Acceptor, NewLogger("info"), clock.New())
	assert.ErrorIs(t, err, session.ErrInvalidSettings)
}

func Test_new_logger_falls_back_to_info(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, NewLogger("warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
}
