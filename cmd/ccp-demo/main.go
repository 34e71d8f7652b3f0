// Command ccp-demo wires a trivial "nimbus-lite" algorithm to a real
// SOCK_SEQPACKET datapath socket and runs the dispatch loop until the
// transport's receive side closes or a direction violation occurs. It loads
// a YAML configuration file, dials the datapath, and shuts down gracefully
// on SIGTERM or SIGINT (mirroring the teacher's cmd/agent/main.go wiring).
//
// nimbus-lite is not a congestion-control algorithm: it holds a fixed
// congestion window and does nothing on measurement. It exists purely to
// exercise the dispatch loop, control API, and transport end-to-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccp-core/ccp/internal/ccpconfig"
	"github.com/ccp-core/ccp/internal/ccplog"
	"github.com/ccp-core/ccp/internal/dispatch"
	"github.com/ccp-core/ccp/internal/ipc"
)

func main() {
	configPath := flag.String("config", "/etc/ccp/ccp-demo.yaml", "path to the CCP demo YAML configuration file")
	flag.Parse()

	cfg, err := ccpconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccp-demo: %v\n", err)
		os.Exit(1)
	}
	if cfg.Algorithm != "nimbus-lite" {
		fmt.Fprintf(os.Stderr, "ccp-demo: unknown algorithm %q (this binary only registers nimbus-lite)\n", cfg.Algorithm)
		os.Exit(1)
	}

	slogger := newLogger(cfg.LogLevel)
	slog.SetDefault(slogger)
	logger := ccplog.New(slogger)

	logger.Info("configuration loaded",
		"config_path", *configPath,
		"socket_path", cfg.SocketPath,
		"algorithm", cfg.Algorithm,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := ipc.Dial(ctx, ipc.UnixConfig{
		SocketPath:      cfg.SocketPath,
		DialTimeout:     time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		MaxDialAttempts: uint64(cfg.MaxDialAttempts),
	}, logger)
	if err != nil {
		logger.Error("failed to connect to datapath", "error", err.Error())
		os.Exit(1)
	}
	defer transport.Close()

	loop := dispatch.NewLoop(
		transport,
		dispatch.Config{Logger: logger, Algorithm: nimbusLiteFactory{}},
		newNimbusLite,
	)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- loop.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		transport.Close()
		// Run always returns a non-nil error (§7: it only ever terminates
		// fatally); the closure triggered by our own transport.Close() above
		// is the expected shutdown path, not a crash.
		if err := <-runErrCh; err != nil {
			logger.Debug("dispatch loop stopped after requested shutdown", "error", err.Error())
		}
	case err := <-runErrCh:
		// The loop terminated on its own: either the datapath closed the
		// connection or sent an outbound-only message inbound. Both are
		// fatal per §7; surface the failure instead of exiting cleanly.
		logger.Error("dispatch loop terminated", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("ccp-demo exited cleanly")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
