package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/miktos/realtime-viewer/internal/config"
	"github.com/miktos/realtime-viewer/internal/mock"
	"github.com/miktos/realtime-viewer/internal/scene"
	"github.com/miktos/realtime-viewer/internal/viewer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	mockMode := flag.Bool("mock", false, "Animate a demo scene instead of waiting for the authoring application")
	httpPort := flag.Int("http-port", 0, "Override preferred static port")
	wsPort := flag.Int("ws-port", 0, "Override preferred channel port")
	layout := flag.String("layout", "", "Override viewport layout (single or quad)")
	reclaim := flag.Bool("reclaim", false, "Terminate processes holding the preferred ports")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *httpPort > 0 {
		cfg.Server.HTTPPort = *httpPort
	}
	if *wsPort > 0 {
		cfg.Server.WSPort = *wsPort
	}
	if *layout != "" {
		cfg.Viewport.Layout = *layout
	}

	var provider scene.Provider
	if *mockMode {
		log.Println("Starting in mock mode (animated demo scene)")
		provider = mock.NewProvider()
	}

	srv := viewer.New(viewer.Config{
		Host:             cfg.Server.Host,
		HTTPPort:         cfg.Server.HTTPPort,
		WSPort:           cfg.Server.WSPort,
		Width:            cfg.Display.Width,
		Height:           cfg.Display.Height,
		FPSTarget:        cfg.Display.FPSTarget,
		Quality:          cfg.Display.Quality,
		SyncInterval:     cfg.Sync.Interval,
		HistoryCap:       cfg.Sync.HistoryCap,
		LayoutMode:       cfg.Viewport.Layout,
		MouseSensitivity: cfg.Viewport.MouseSensitivity,
		SyncCameras:      cfg.Viewport.SyncCameras,
		ReclaimPorts:     *reclaim,
	}, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Viewer failed to start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")
	srv.Stop()
}
