package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/builtin"
	"github.com/jcodehq/jcode/config"
	"github.com/jcodehq/jcode/debug"
	"github.com/jcodehq/jcode/manager"
	"github.com/jcodehq/jcode/server"
	"github.com/spf13/cobra"
)

// newServeCmd builds the "serve" subcommand: run jcode as a daemon only,
// speaking the wire protocol on jcode.sock and, if enabled, the debug
// channel on jcode-debug.sock (§6 "IPC endpoints").
func newServeCmd() *cobra.Command {
	var (
		providerFlag string
		apiKey       string
		modelFlag    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run jcode as a background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), serveFlags{
				providerFlag: providerFlag,
				apiKey:       apiKey,
				model:        modelFlag,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&providerFlag, "provider", "", "Provider: anthropic, gemini (auto-detected from env vars if omitted)")
	flags.StringVar(&apiKey, "api-key", "", "API key (overrides provider's env var)")
	flags.StringVar(&modelFlag, "model", "", "Default model ID (provider-specific)")

	return cmd
}

type serveFlags struct {
	providerFlag string
	apiKey       string
	model        string
}

func serve(ctx context.Context, f serveFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := config.Load(config.DefaultTOMLPath(), os.Getenv, config.Config{
		DefaultProvider: f.providerFlag,
		DefaultModel:    f.model,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runtimeDir := cfg.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = defaultRuntimeDir()
	}
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}

	logger := newDaemonLogger()

	provider, err := resolveProvider(ctx, cfg.DefaultProvider, f.apiKey,
		os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		return err
	}

	reg := jcode.NewRegistry()
	builtin.RegisterAll(reg)

	mgr := manager.New(manager.DefaultRoot(), logger)
	if err := mgr.Scan(); err != nil {
		return fmt.Errorf("scan session store: %w", err)
	}

	srv := server.New(server.Config{
		SocketPath:   filepath.Join(runtimeDir, "jcode.sock"),
		RegistryDir:  filepath.Join(manager.DefaultRoot(), "registry"),
		IdleShutdown: cfg.IdleShutdown,
		Model:        cfg.DefaultModel,
	}, mgr, provider, reg, logger)

	debugErrCh := make(chan error, 1)

	if cfg.DebugSocket {
		debugSocket := filepath.Join(runtimeDir, "jcode-debug.sock")
		os.Remove(debugSocket)
		ln, err := net.Listen("unix", debugSocket)
		if err != nil {
			return fmt.Errorf("listen on debug socket %s: %w", debugSocket, err)
		}
		allowMutate := debug.MutationsAllowed(runtimeDir, os.Getenv)
		h := debug.New(srv, allowMutate, logger)
		httpSrv := &http.Server{Handler: h}
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
		go func() {
			if err := httpSrv.Serve(ln); err != nil && ctx.Err() == nil {
				debugErrCh <- fmt.Errorf("debug channel: %w", err)
			}
		}()
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.ListenAndServe(ctx)
	}()

	select {
	case err := <-srvErrCh:
		if errors.Is(err, server.ErrReloadRequested) {
			logger.Info("reloading: re-executing binary in place")
			return reexecSelf()
		}
		if ctx.Err() != nil {
			return nil
		}
		return err
	case err := <-debugErrCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func defaultRuntimeDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "jcode")
	}
	return filepath.Join(os.TempDir(), "jcode")
}

func newDaemonLogger() *slog.Logger {
	logDir := filepath.Join(manager.DefaultRoot(), "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	name := fmt.Sprintf("jcode-%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewJSONHandler(f, nil))
}
