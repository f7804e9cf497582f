package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/memo/internal/config"
	"github.com/leonardcser/memo/internal/daemon"
	"github.com/leonardcser/memo/internal/logger"
	"github.com/leonardcser/memo/internal/store"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755)
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	_ = os.Remove(cfg.SocketPath)

	st, err := store.Open(cfg.DBPath, store.Options{Bucket: cfg.Bucket})
	if err != nil {
		logger.Errorf("open %s: %v", cfg.DBPath, err)
		os.Exit(1)
	}
	defer st.Close()

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		logger.Errorf("listen %s: %v", cfg.SocketPath, err)
		os.Exit(1)
	}
	_ = os.Chmod(cfg.SocketPath, 0o600)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("cache daemon serving %s on %s", cfg.DBPath, cfg.SocketPath)
	if err := daemon.NewServer(st, logger.Slog()).Serve(ctx, l); err != nil {
		logger.Errorf("serve: %v", err)
	}
	logger.Infof("cache daemon stopped")
}
