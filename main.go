package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"prefect-attendance/internal/app"
	"prefect-attendance/internal/platform/config"
	"prefect-attendance/internal/platform/logger"
)

func main() {
	path := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, app.AppName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", app.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("init failed", zap.Error(err))
	}
	defer a.Close()

	// background jobs stop with ctx
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Backup.Run(ctx, cfg.Backup.Interval)
	}()
	go func() {
		defer wg.Done()
		a.Sync.RunAutoSync(ctx, cfg.Remote.AutoSyncInterval)
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		var err error
		if cfg.Server.Cert != "" && cfg.Server.Key != "" {
			log.Info("listening", zap.String("addr", srv.Addr), zap.Bool("tls", true))
			err = srv.ListenAndServeTLS(cfg.Server.Cert, cfg.Server.Key)
		} else {
			log.Info("listening", zap.String("addr", srv.Addr), zap.Bool("tls", false))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	wg.Wait()
}
