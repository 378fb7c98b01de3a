package session

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/fr3shw3b/fix-session-engine/pkg/sessions"
	"github.com/fr3shw3b/fix-session-engine/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	bankID   = sessions.SessionID{SenderCompID: "BANK", TargetCompID: "BROKER"}
	brokerID = bankID.Reverse()
)

// peer is a hand driven counterparty on the far end of a loopback TCP
// connection.
type peer struct {
	t      *testing.T
	conn   net.Conn
	id     sessions.SessionID
	frames chan []byte
}

// connectPeer returns the session side of a loopback connection and the
// peer driving the other end.
func connectPeer(t *testing.T, id sessions.SessionID) (net.Conn, *peer) {
	t.Helper()
	local, remote := loopback(t)
	p := &peer{t: t, conn: remote, id: id, frames: make(chan []byte, 128)}
	go p.readLoop()
	return local, p
}

func loopback(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	local, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	var remote net.Conn
	select {
	case remote = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("loopback accept timed out")
	}
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return local, remote
}

func (p *peer) readLoop() {
	defer close(p.frames)
	reader := codec.NewFrameReader(p.conn, 64*1024)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return
		}
		p.frames <- append([]byte(nil), frame...)
	}
}

// send writes a message with fields given as "tag=value|..." and '|' for
// SOH.
func (p *peer) send(msgType string, seqNum int, fields string) {
	p.write(msgType, seqNum, false, fields)
}

func (p *peer) resend(msgType string, seqNum int, fields string) {
	p.write(msgType, seqNum, true, fields)
}

func (p *peer) write(msgType string, seqNum int, possDup bool, fields string) {
	p.t.Helper()
	var body []byte
	body = appendField(body, utils.TagMsgType, msgType)
	body = appendField(body, utils.TagMsgSeqNum, strconv.Itoa(seqNum))
	if possDup {
		body = appendField(body, utils.TagPossDupFlag, "Y")
	}
	body = appendField(body, utils.TagSenderCompID, p.id.SenderCompID)
	now := codec.AppendTimestamp(nil, time.Now())
	body = appendField(body, utils.TagSendingTime, string(now))
	body = appendField(body, utils.TagTargetCompID, p.id.TargetCompID)
	if possDup {
		body = appendField(body, utils.TagOrigSendingTime, string(now))
	}
	body = append(body, soh(fields)...)
	frame := codec.AppendFrame(nil, utils.DefaultBeginString, body)
	_, err := p.conn.Write(frame)
	require.NoError(p.t, err)
}

// expect returns the next frame, which must have the given type.
func (p *peer) expect(msgType string) *inbound {
	p.t.Helper()
	select {
	case frame, ok := <-p.frames:
		require.True(p.t, ok, "connection closed while waiting for 35=%s", msgType)
		m := decodeFrame(p.t, frame)
		require.Equal(p.t, msgType, m.msgType.String(), "unexpected frame %s", printable(frame))
		return m
	case <-time.After(5 * time.Second):
		p.t.Fatalf("timed out waiting for 35=%s", msgType)
		return nil
	}
}

// drain collects frames until the connection closes.
func (p *peer) drain() []*inbound {
	p.t.Helper()
	var received []*inbound
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frame, ok := <-p.frames:
			if !ok {
				return received
			}
			received = append(received, decodeFrame(p.t, frame))
		case <-timeout:
			p.t.Fatal("connection did not close")
			return nil
		}
	}
}

func (p *peer) logon(seqNum int, extra string) {
	p.send(utils.MsgTypeLogon, seqNum, "98=0|108=30|"+extra)
}

func decodeFrame(t *testing.T, frame []byte) *inbound {
	t.Helper()
	m := &inbound{}
	require.NoError(t, m.decode(frame))
	return m
}

func (m *inbound) bodyString() string {
	return printable(m.frame[m.body:m.bodyEnd])
}

func soh(fields string) []byte {
	return []byte(strings.ReplaceAll(fields, "|", string(utils.SOH)))
}

func printable(b []byte) string {
	return string(bytes.ReplaceAll(b, []byte{utils.SOH}, []byte{'|'}))
}

type collector struct {
	mu       sync.Mutex
	seqNums  []int
	possDups []bool
	bodies   []string
}

func (c *collector) OnMessage(_ *Session, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqNums = append(c.seqNums, msg.SeqNum)
	c.possDups = append(c.possDups, msg.PossDup)
	c.bodies = append(c.bodies, printable(msg.Body))
}

func (c *collector) received() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.seqNums...)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
	causes   []error
}

func (r *statusRecorder) listen(_ sessions.SessionID, status Status, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.causes = append(r.causes, cause)
}

func (r *statusRecorder) recorded() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func testSettings() Settings {
	settings := DefaultSettings()
	settings.HeartbeatInterval = 30 * time.Second
	settings.LogonTimeout = 5 * time.Second
	settings.LogoutTimeout = 2 * time.Second
	return settings
}

func newTestSession(t *testing.T, id sessions.SessionID, role Role, settings Settings, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(createLogger())}, opts...)
	sess, err := New(id, role, settings, sessions.NewMemoryState(), nil, opts...)
	require.NoError(t, err)
	return sess
}

func runAsync(ctx context.Context, sess *Session, conn net.Conn) chan error {
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx, conn)
	}()
	return done
}

func waitForStatus(t *testing.T, sess *Session, status Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Status() == status
	}, 5*time.Second, 5*time.Millisecond, "session never reached %s", status)
}

func waitForResult(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

// advanceUntil moves the mock clock forward in steps until cond holds.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if cond() {
			return
		}
		mock.Add(step)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met while advancing the clock")
}

func createLogger() *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(customFormatter)
	return logger
}
