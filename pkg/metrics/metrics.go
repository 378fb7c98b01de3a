package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_messages_total",
		Help: "Total FIX frames, partitioned by session, direction and message type",
	}, []string{"session", "direction", "msg_type"})
	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_bytes_total",
		Help: "Total FIX bytes on the wire",
	}, []string{"session", "direction"})

	ResendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_resend_requests_total",
		Help: "Total ResendRequests, sent because of a detected gap or received from the counterparty",
	}, []string{"session", "direction"})
	ResentMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_resent_messages_total",
		Help: "Total messages retransmitted with PossDup",
	}, []string{"session"})
	GapFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_gap_fills_total",
		Help: "Total SequenceReset-GapFill messages sent while servicing resends",
	}, []string{"session"})

	SessionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fix_session_status",
		Help: "Current session status (0=disconnected .. 5=initiated logout)",
	}, []string{"session"})
	DisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_disconnects_total",
		Help: "Total disconnects, partitioned by reason",
	}, []string{"session", "reason"})
	SequenceNumbers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fix_next_seq_num",
		Help: "Next sender and target sequence numbers",
	}, []string{"session", "counter"})

	StoreFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fix_store_failures_total",
		Help: "Total message store failures degraded to resend unavailable",
	}, []string{"store", "op"})
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)
