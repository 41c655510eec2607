// Command memberdesk-devserver runs a fake dashboard API for local
// development. It serves the same routes as the real dashboard, optionally
// seeded from a YAML fixture, and can generate new items periodically.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"github.com/nhle/memberdesk/internal/devserver"
	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "memberdesk-devserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	token := flag.String("token", "", "required Bearer token (empty disables auth)")
	seed := flag.String("seed", "", "YAML fixture loaded at startup")
	envelope := flag.Bool("envelope", false, `wrap responses in {"data": ...}`)
	every := flag.Duration("generate-every", 0, "push a synthetic item at this interval (0 disables)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logger.Init(logger.Options{Level: *logLevel}); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Get()

	gin.SetMode(gin.ReleaseMode)
	srv := devserver.New(devserver.Options{
		Token:          *token,
		Envelope:       *envelope,
		MetricsHandler: metrics.New().Handler(),
		Log:            log,
	})

	if *seed != "" {
		f, err := os.Open(*seed)
		if err != nil {
			return fmt.Errorf("opening seed: %w", err)
		}
		err = srv.LoadSeed(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	if *every > 0 {
		gen, err := devserver.NewGenerator(srv, "@every "+every.String())
		if err != nil {
			return err
		}
		gen.Start()
		defer gen.Stop()
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infow("devserver listening", "addr", *addr, "auth", *token != "")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
