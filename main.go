package main

import (
	"context"
	"flag"

	"github.com/soocke/frame-pipeline-go/app"
	"github.com/soocke/frame-pipeline-go/config"
	"github.com/soocke/frame-pipeline-go/domain/lifecycle"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to a YAML or JSON config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging and runtime stats")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if *debugFlag {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	logger := NewLogger(ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Warn("config load failed, using defaults", "path", *cfgPath, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application := app.NewApp("Frame Pipeline", cfg, *cfgPath, logger)
	lifecycle.WatchSignals(ctx, application.Bus())
	application.Start(ctx)
}
