package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/slaclab/pydm-pva-widgets/internal/config"
	"github.com/slaclab/pydm-pva-widgets/internal/core"
)

const viewerConfig = "instance_id: ntviewer\n"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: synthetic source)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	svc, err := newService(*configPath)
	if err != nil {
		slog.Error("failed to create viewer service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := app.NewWithID("org.slaclab.ntviewer")
	w := a.NewWindow("NTNDArray Viewer")

	view := newImageView(svc.Widget())
	w.SetContent(view)
	w.SetMaster()
	w.Resize(fyne.NewSize(640, 640))

	go func() {
		if err := svc.Run(ctx); err != nil {
			slog.Error("service error", "error", err)
			fyne.Do(a.Quit)
		}
	}()
	go view.follow(ctx)

	w.ShowAndRun()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), svc.ShutdownTimeout())
	defer shutdownCancel()
	if err := svc.Shutdown(shutdownCtx); err != nil && err != context.DeadlineExceeded {
		slog.Error("shutdown failed", "error", err)
	}
}

func newService(path string) (*core.Service, error) {
	if path != "" {
		return core.NewServiceFromFile(path)
	}
	cfg, err := config.Parse([]byte(viewerConfig))
	if err != nil {
		return nil, err
	}
	cfg.ShutdownTimeoutS = 2
	return core.NewService(cfg)
}
