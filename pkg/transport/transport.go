package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// DialFunc opens one connection to the counterparty.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// TCP dials host:port with keep-alive enabled.
func TCP(host string, port int) DialFunc {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := &net.Dialer{KeepAlive: 30 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		return conn, nil
	}
}

// WebSocket dials ws://host:port/path and carries the FIX byte stream in
// binary messages.
func WebSocket(host string, port int, path string) DialFunc {
	u := url.URL{
		// todo: support TLS.
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	target := u.String()
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			return nil, err
		}
		return NewWebSocketConn(ws), nil
	}
}

// WebSocketConn adapts a WebSocket connection to a byte stream. Frames may
// span message boundaries in either direction. Read and Write may be called
// from different goroutines but each from one goroutine at a time.
type WebSocketConn struct {
	ws        *websocket.Conn
	reader    io.Reader
	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, reader, err := c.ws.NextReader()
			if err != nil {
				return 0, translate(err)
			}
			c.reader = reader
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, translate(err)
		}
		return n, nil
	}
}

func (c *WebSocketConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, translate(err)
	}
	return len(p), nil
}

// Close sends a normal closure to the counterparty and closes the socket.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// translate turns an orderly close by the counterparty into io.EOF.
func translate(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}
