package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alertwire/alertwire/internal/backoff"
	"github.com/alertwire/alertwire/internal/config"
	"github.com/alertwire/alertwire/internal/protocol"
	"github.com/alertwire/alertwire/internal/session"
	"github.com/alertwire/alertwire/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file")
	initial := flag.String("message", "hello from alertwire", "initial message to send")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.NewAddrConfig("localhost", 8443)
	if *configPath != "" {
		cfg, err = cfg.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}
	cfg, err = cfg.FromEnv()
	if err != nil {
		logger.Fatal("resolve config", zap.Error(err))
	}

	spec := backoff.DefaultSpec().
		WithMaxAttempts(5).
		WithInitialDelay(200 * time.Millisecond).
		WithMaxDelay(10 * time.Second)

	sess := session.New(transport.NewWebSocket(cfg), session.Config{
		Backoff:    backoff.NewExponential(spec),
		Dispatcher: protocol.NewDispatcher(protocol.LogHandler{Logger: logger}, logger),
		Logger:     logger,
	})

	logger.Info("connecting", zap.String("url", cfg.URL()))
	sess.Start([]byte(*initial))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("stopping")
		sess.Stop()
		<-sess.Done()
	case <-sess.Done():
	}

	if err := sess.Err(); err != nil {
		logger.Error("session ended with error", zap.Error(err))
		os.Exit(1)
	}
}
