// Package main is the entry point for a single detectmate component
// process: it builds a Service from Settings and runs it until shutdown is
// requested over the AdminAPI or the process receives an interrupt.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ait-detectmate/detectmate-go/internal/service"
)

const (
	serviceName    = "detectmate"
	serviceVersion = "0.1.0"
)

func main() {
	settingsPath := flag.String("settings", "", "path to a settings YAML file (optional; defaults apply)")
	configPath := flag.String("config", "", "path to a config YAML file, overriding config_file in settings")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	svc, err := service.New(*settingsPath, *configPath)
	if err != nil {
		slog.Error("detectmate: failed to build service", "err", err)
		os.Exit(1)
	}

	logger := svc.Logger()
	logger.Info("detectmate: starting", "service", serviceName, "version", serviceVersion)

	httpAddr := fmt.Sprintf("%s:%d", svc.Settings().HTTPHost, svc.Settings().HTTPPort)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: svc.AdminHandler(),
	}

	go func() {
		logger.Info("detectmate: admin API listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("detectmate: admin API failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		logger.Error("detectmate: run failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("detectmate: admin API shutdown failed", "err", err)
	}

	logger.Info("detectmate: exited")
}
