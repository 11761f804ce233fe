package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alertwire/alertwire/internal/config"
	"github.com/alertwire/alertwire/internal/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.NewAddrConfig("0.0.0.0", 8443)
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

	srv := server.New(cfg, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
