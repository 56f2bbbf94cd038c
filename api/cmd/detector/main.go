package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"

	"ai-detector/api/internal/app"
	"ai-detector/api/internal/config"
	"ai-detector/api/internal/handle"
	"ai-detector/api/internal/httpserver"
)

func main() {
	cfg := config.Load()
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init")
	}
	defer a.Close()
	a.RunMaintenance(ctx)

	h := handle.New(a.Pool, a.Sessions, a.ServerKey())
	h.MaxImageBytes = cfg.MaxImageBytes
	h.Timeout = cfg.AnalyzeTimeout

	addr := ":" + cfg.Port
	if err := httpserver.Serve(ctx, addr, httpserver.NewRouter(h, a.Checks())); err != nil {
		log.WithError(err).Error("http server stopped")
		return
	}
	log.Info("detector stopped")
}
