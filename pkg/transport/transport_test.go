package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/fr3shw3b/fix-session-engine/pkg/codec"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFrame = codec.AppendFrame(nil, "FIX.4.4", []byte("35=0\x0134=1\x0149=A\x0156=B\x01"))

func Test_websocket_stream_reassembles_frames_split_across_messages(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()

		reader := codec.NewFrameReader(conn, 1024)
		frame, err := reader.ReadFrame()
		if err != nil {
			return
		}
		received <- append([]byte(nil), frame...)

		half := len(testFrame) / 2
		_, _ = conn.Write(testFrame[:half])
		_, _ = conn.Write(testFrame[half:])
	}))
	defer server.Close()

	host, port := hostPort(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := WebSocket(host, port, "/fix")(ctx)
	require.NoError(t, err)
	defer conn.Close()

	// One frame across two messages.
	_, err = conn.Write(testFrame[:10])
	require.NoError(t, err)
	_, err = conn.Write(testFrame[10:])
	require.NoError(t, err)

	select {
	case frame := <-received:
		assert.Equal(t, testFrame, frame)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive the frame")
	}

	reader := codec.NewFrameReader(conn, 1024)
	frame, err := reader.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, testFrame, frame)

	_, err = reader.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func Test_websocket_dial_fails_without_a_server(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := WebSocket("127.0.0.1", freePort(t), "/fix")(ctx)
	assert.Error(t, err)
}

func Test_tcp_dial_connects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(testFrame)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := TCP("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)(ctx)
	require.NoError(t, err)
	defer conn.Close()

	frame, err := codec.NewFrameReader(conn, 1024).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, testFrame, frame)
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}
