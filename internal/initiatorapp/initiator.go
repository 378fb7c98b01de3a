package initiatorapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/internal/engine"
	"github.com/fr3shw3b/fix-session-engine/pkg/client"
	"github.com/fr3shw3b/fix-session-engine/pkg/config"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/fr3shw3b/fix-session-engine/pkg/transport"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Run keeps the configured initiator session connected to
// serverHost:serverPort until interrupted. A positive metricsPort exposes
// /metrics.
func Run(serverHost string, serverPort int, metricsPort int) error {
	engine.LoadEnv(".env.initiator")

	conf, err := config.LoadForInitiator()
	if err != nil {
		log.Fatal("Failed to load configuration for initiator: ", err)
	}
	logger := engine.NewLogger(conf.LogLevel)

	clk := clock.New()
	rt, err := engine.Open(&conf.Config, session.Initiator, logger, clk)
	if err != nil {
		return err
	}
	defer rt.Close()

	dial := transport.TCP(serverHost, serverPort)
	if conf.Transport == config.TransportWebSocket {
		dial = transport.WebSocket(serverHost, serverPort, "/fix")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsPort > 0 {
		metricsSrv := serveMetrics(metricsPort, logger)
		defer metricsSrv.Close()
	}

	flushCtx, stopFlushing := context.WithCancel(context.Background())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		_ = rt.RunFlusher(flushCtx)
	}()
	defer func() {
		stopFlushing()
		<-flushed
	}()

	// One initiator session per process; several counterparties would each
	// get their own client.
	clientInstance := client.NewDefaultClient(
		&client.ClientParams{
			Dial:                 dial,
			MaxReconnectAttempts: conf.MaxReconnectAttempts,
			Clock:                clk,
		},
		rt.Session,
		conf.Schedule,
		logger,
	)
	if err := clientInstance.Connect(ctx); err != nil {
		return err
	}
	<-clientInstance.Done()
	return clientInstance.Err()
}

func serveMetrics(port int, logger *logrus.Logger) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      1 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped: ", err)
		}
	}()
	return srv
}
