// Command alarmd is the alarm scheduling daemon.
// It loads configuration, initialises node identity, starts the scheduler,
// and reads alarm commands from standard input:
//
//	Start_Alarm(<id>): <seconds> <message>
//	Change_Alarm(<id>): <seconds> <message>
//
// Notifications print on stdout; logs and command diagnostics go to stderr.
//
// Usage:
//
//	alarmd [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alarmd-project/alarmd/internal/config"
	"github.com/alarmd-project/alarmd/internal/core"
	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/gateway"
	"github.com/alarmd-project/alarmd/internal/journal"
	"github.com/alarmd-project/alarmd/internal/metrics"
	"github.com/alarmd-project/alarmd/internal/node"
	transphttp "github.com/alarmd-project/alarmd/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "alarmd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	// Logs go to stderr: stdout belongs to the alarm notifications.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Initialise node identity ──────────────────────────────────────────
	nodeID, err := node.Identity(cfg.Node.DataDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}

	logger.Info("alarmd starting",
		"node_id", nodeID,
		"data_dir", cfg.Node.DataDir,
		"render_interval_ms", cfg.Alarm.RenderIntervalMs,
	)

	// ── 4. Initialise metrics registry ───────────────────────────────────────
	metricsReg := &metrics.Registry{}

	// ── 5. Initialise core and attach sinks ──────────────────────────────────
	c := core.New(cfg, "main", core.WithLogger(logger))

	c.Hub().AddSink(event.NewConsoleSink(os.Stdout))

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Node.DataDir, logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jnl.Close()
		c.Hub().AddSink(jnl)
	}
	if cfg.Metrics.Enabled {
		c.Hub().AddSink(metricsReg.Sink())
	}

	c.Start(context.Background())
	defer c.Close()

	// ── 6. Start HTTP / WebSocket transport ──────────────────────────────────
	var srv *transphttp.Server
	serveErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		var httpMetrics *metrics.Registry
		if cfg.Metrics.Enabled {
			httpMetrics = metricsReg
		}
		srv = transphttp.New(c, jnl, cfg, nodeID, httpMetrics, logger)
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		go func() {
			logger.Info("observation api listening", "addr", addr)
			if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			} else {
				serveErr <- nil
			}
		}()
	}

	// ── 7. Start the command gateway on stdin ────────────────────────────────
	gw := gateway.New(c, os.Stderr,
		gateway.WithMetrics(metricsReg),
		gateway.WithPrompt(os.Stdout, "alarm> "),
		gateway.WithLogger(logger),
	)

	gwCtx, gwCancel := context.WithCancel(context.Background())
	defer gwCancel()
	gwDone := make(chan error, 1)
	go func() {
		gwDone <- gw.Run(gwCtx, os.Stdin)
	}()

	// ── 8. Run until stdin EOF, SIGINT/SIGTERM, or HTTP failure ──────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-gwDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("gateway stopped", "err", err)
		} else {
			logger.Info("stdin closed, shutting down")
		}
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("server shutdown error", "err", err)
		}
	}

	logger.Info("alarmd stopped")
	return nil
}
