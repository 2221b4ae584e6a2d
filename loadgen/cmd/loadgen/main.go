package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/loadgen/internal/bench"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:   "loadgen",
		Short: "Load generator for driftlog-server",
	}
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send concurrent inserts then queries and print latency stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			baseURL, _ := f.GetString("url")
			requests, _ := f.GetInt("requests")
			concurrency, _ := f.GetInt("concurrency")
			timeout, _ := f.GetDuration("timeout")
			apiKey, _ := f.GetString("api-key")
			header, _ := f.GetString("api-key-header")

			if requests <= 0 || concurrency <= 0 {
				return fmt.Errorf("--requests and --concurrency must be positive")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			slog.Info("loadgen: starting", "url", baseURL, "requests", requests, "concurrency", concurrency)
			rep, err := bench.New(bench.Config{
				BaseURL:     baseURL,
				Requests:    requests,
				Concurrency: concurrency,
				Timeout:     timeout,
				APIKey:      apiKey,
				Header:      header,
			}).Run(ctx)
			if err != nil {
				return fmt.Errorf("loadgen: %w", err)
			}
			return rep.Print(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("url", "http://localhost:8000", "driftlog-server base URL")
	f.Int("requests", 100, "requests per phase")
	f.Int("concurrency", 10, "maximum requests in flight")
	f.Duration("timeout", 10*time.Second, "per-request timeout")
	f.String("api-key", os.Getenv("DRIFTLOG_API_KEY"), "API key sent with every request")
	f.String("api-key-header", "x-api-key", "header carrying the API key")
	return cmd
}
