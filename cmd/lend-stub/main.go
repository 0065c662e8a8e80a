// Command lend-stub serves a development backend for the lend client.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/stub"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses flags and serves the stub API until SIGINT/SIGTERM.
func main() {
	addr := flag.String("addr", ":8000", "listen address")
	jwtKey := flag.String("jwt-key", "", "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", 5*time.Minute, "access token TTL")
	maxFails := flag.Int("max-fails", 5, "failed logins before an email/IP pair is locked")
	dev := flag.Bool("dev", false, "human-readable debug logging")
	flag.Parse()

	level := "info"
	if *dev {
		level = "debug"
	}
	log, err := logger.New(level, *dev)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		log.Fatal("missing jwt signing key (--jwt-key)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := stub.NewServer(stub.Config{
		SignKey:   []byte(*jwtKey),
		AccessTTL: *accessTTL,
		Limiter:   stub.NewMemoryLimiter(15*time.Minute, *maxFails, 15*time.Minute),
		Logger:    log,
	})
	if err != nil {
		log.Fatal("build server", zap.Error(err))
	}
	for _, d := range stub.DemoAccounts {
		log.Info("demo account", zap.String("email", d.Email), zap.String("role", d.Role), zap.Bool("mfa", d.MFA))
	}

	hs := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", *addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown timed out", zap.Error(err))
			_ = hs.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	log.Info("shutdown complete")
}
