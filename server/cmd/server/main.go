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
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/driftlog/driftlog/server/internal/api"
	"github.com/driftlog/driftlog/server/internal/auth"
	"github.com/driftlog/driftlog/server/internal/config"
	"github.com/driftlog/driftlog/server/internal/metrics"
	"github.com/driftlog/driftlog/server/internal/receiver"
	"github.com/driftlog/driftlog/server/internal/store"
	"github.com/driftlog/driftlog/server/internal/sweeper"
	"github.com/driftlog/driftlog/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "driftlog-server",
		Short:         "In-memory log ingestion and query server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flagsToEnv(cmd); err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			return run(path)
		},
	}

	f := cmd.Flags()
	f.String("config", os.Getenv("DRIFTLOG_CONFIG"), "path to YAML config file (optional)")
	f.String("host", "", "listen host (overrides "+config.EnvHost+")")
	f.Int("port", 0, "HTTP port (overrides "+config.EnvHTTPPort+")")
	f.Int("grpc-port", 0, "gRPC port, 0 disables (overrides "+config.EnvGRPCPort+")")
	f.Duration("retention", 0, "how long records are kept (overrides "+config.EnvRetention+")")
	f.Duration("sweep-interval", 0, "how often expired records are removed (overrides "+config.EnvSweepInterval+")")
	f.String("log-level", "", "debug|info|warn|error (overrides "+config.EnvLogLevel+")")
	return cmd
}

// flagsToEnv exports explicitly set flags as DRIFTLOG_* variables so that
// config.Load applies them with the highest precedence.
func flagsToEnv(cmd *cobra.Command) error {
	f := cmd.Flags()
	pairs := []struct{ flag, env string }{
		{"host", config.EnvHost},
		{"port", config.EnvHTTPPort},
		{"grpc-port", config.EnvGRPCPort},
		{"retention", config.EnvRetention},
		{"sweep-interval", config.EnvSweepInterval},
		{"log-level", config.EnvLogLevel},
	}
	for _, p := range pairs {
		if !f.Changed(p.flag) {
			continue
		}
		if err := os.Setenv(p.env, f.Lookup(p.flag).Value.String()); err != nil {
			return fmt.Errorf("set %s: %w", p.env, err)
		}
	}
	return nil
}

func run(configPath string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	level.Set(cfg.Server.Level())

	slog.Info("driftlog-server starting",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr(),
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"retention", cfg.Server.Retention.Window,
		"sweep_interval", cfg.Server.Retention.SweepInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The hub needs the store for its heartbeat and the store needs the hub
	// as an insert hook.
	var st *store.Store
	hub := ws.New(func() int { return st.Count() }, cfg.Server.Stream.Interval)
	st = store.New(store.WithInsertHook(hub.Publish))

	m := metrics.New(st.Count)
	sw := sweeper.New(st, sweeper.Config{
		Interval:  cfg.Server.Retention.SweepInterval,
		Retention: cfg.Server.Retention.Window,
	}, sweeper.WithMetrics(m), sweeper.WithLogger(logger))

	checker := auth.NewChecker(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())
	if cfg.Server.Auth.Mode == "apikey" && !checker.Enabled() {
		slog.Warn("auth: apikey mode configured but key is empty; requests are not authenticated",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	httpSrv := &http.Server{
		Addr: cfg.Server.HTTPAddr(),
		Handler: api.New(st,
			api.WithMetrics(m),
			api.WithAuth(checker),
			api.WithLiveTail(hub),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sw.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return httpSrv.Shutdown(shutCtx)
	})

	if cfg.Server.GRPCPort != 0 {
		grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(checker.UnaryInterceptor()))
		receiver.RegisterLogServiceServer(grpcSrv, receiver.New(st, receiver.WithMetrics(m)))

		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			cancel()
			g.Wait() //nolint:errcheck
			return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
		}
		g.Go(func() error {
			slog.Info("gRPC receiver listening", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	if configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, configPath, func(c *config.Config) {
				level.Set(c.Server.Level())
			})
			if err != nil {
				slog.Warn("config: hot reload disabled", "err", err)
			}
			return nil
		})
	}

	err = g.Wait()
	slog.Info("driftlog-server stopped")
	if err != nil {
		slog.Error("driftlog-server exited with error", "err", err)
	}
	return err
}
