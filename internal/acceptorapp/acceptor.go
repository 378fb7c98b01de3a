package acceptorapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fr3shw3b/fix-session-engine/internal/engine"
	"github.com/fr3shw3b/fix-session-engine/pkg/config"
	"github.com/fr3shw3b/fix-session-engine/pkg/server"
	"github.com/fr3shw3b/fix-session-engine/pkg/session"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Run serves the configured acceptor session on a raw TCP port and over
// WebSocket at /fix on the HTTP port, which also exposes /metrics.
func Run(port int, httpPort int) error {
	engine.LoadEnv(".env.acceptor")

	conf, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration for acceptor: ", err)
	}
	logger := engine.NewLogger(conf.LogLevel)

	clk := clock.New()
	rt, err := engine.Open(conf, session.Acceptor, logger, clk)
	if err != nil {
		return err
	}
	defer rt.Close()

	acceptor, err := server.NewAcceptor(&server.AcceptorParams{
		Schedule: conf.Schedule,
		Clock:    clk,
	}, logger, rt.Session)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/fix", acceptor)
	router.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      1 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acceptor.Serve(ctx, ln)
	})
	g.Go(func() error {
		logger.Infof("HTTP server listening on port %d", httpPort)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return rt.RunFlusher(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		acceptor.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
