package client

import (
	"context"

	"github.com/fr3shw3b/fix-session-engine/pkg/session"
)

// Client keeps an initiator session connected for as long as its schedule
// allows.
type Client interface {
	// Connect waits for the schedule window, dials and starts maintaining
	// the session in the background. It returns once the first connection
	// is established. Cancelling ctx logs out and stops the client.
	Connect(ctx context.Context) error
	// Close logs out and stops reconnecting.
	Close() error
	// Done is closed once the client has stopped.
	Done() <-chan struct{}
	// Err is the reason the client stopped, nil when closed.
	Err() error
	Session() *session.Session
}
