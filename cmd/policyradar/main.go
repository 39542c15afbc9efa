package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PolicyRadar/internal/app"
	"PolicyRadar/internal/config"
	"PolicyRadar/internal/logging"
)

func main() {
	mode := flag.String("mode", "daemon", "run mode: fetch | analyze | reanalyze | stats | daemon")
	limit := flag.Int("limit", 0, "max records per analysis round (0 uses configured batch size)")
	workers := flag.Int("concurrency", 0, "worker count for async analysis (0 uses configured maximum)")
	sync := flag.Bool("sync", false, "analyze records one by one instead of concurrently")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "fetch":
		err = application.RunFetch(ctx)
	case "analyze":
		err = application.RunAnalyze(ctx, *limit, *workers, *sync)
	case "reanalyze":
		err = application.RunReanalyze(ctx, *limit)
	case "stats":
		err = application.RunStats(ctx)
	case "daemon":
		err = application.RunDaemon(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("run failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}
