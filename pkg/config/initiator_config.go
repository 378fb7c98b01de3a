package config

import (
	"fmt"
	"strings"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

type InitiatorConfig struct {
	Config
	MaxReconnectAttempts int
	Transport            string
}

func LoadForInitiator() (*InitiatorConfig, error) {
	v := newViper()
	conf, err := load(v)
	if err != nil {
		return nil, err
	}

	maxReconnectAttempts, err := intValue(v, "MAX_RECONNECTION_ATTEMPTS")
	if err != nil {
		return nil, err
	}
	if maxReconnectAttempts < 0 {
		return nil, fmt.Errorf("%w: MAX_RECONNECTION_ATTEMPTS must not be negative", ErrInvalidConfig)
	}

	transport := strings.ToLower(v.GetString("TRANSPORT"))
	if transport != TransportTCP && transport != TransportWebSocket {
		return nil, fmt.Errorf("%w: TRANSPORT must be %s or %s, got %q", ErrInvalidConfig, TransportTCP, TransportWebSocket, transport)
	}

	return &InitiatorConfig{
		Config:               *conf,
		MaxReconnectAttempts: maxReconnectAttempts,
		Transport:            transport,
	}, nil
}
