package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/tracker-sync/internal/config"
	"github.com/alexjbarnes/tracker-sync/internal/logging"
	"github.com/alexjbarnes/tracker-sync/internal/remote"
	"github.com/alexjbarnes/tracker-sync/internal/store"
	"github.com/alexjbarnes/tracker-sync/internal/syncer"
)

var Version = "dev"

func main() {
	// "push" runs one forced upload cycle and exits, for scripting and
	// for pushing a fresh replica before the daemon ever pulls.
	pushOnly := len(os.Args) > 1 && os.Args[1] == "push"

	if err := run(pushOnly); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(pushOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("tracker-sync starting",
		slog.String("version", Version),
		slog.String("backend", cfg.RemoteBackend),
		slog.Bool("push_only", pushOnly),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}

	s := syncer.New(st, transport, syncer.Options{
		Passphrase:   cfg.Passphrase,
		PullInterval: cfg.SyncInterval,
		Debounce:     cfg.SyncDebounce,
	}, logger)

	if pushOnly {
		stats, err := s.RunCycle(ctx, false)
		if err != nil {
			return fmt.Errorf("push cycle: %w", err)
		}

		logger.Info("push complete", slog.Int("uploaded_bytes", stats.UploadedBytes))

		return nil
	}

	// Run one full cycle up front so a fresh replica converges before the
	// first timer fires.
	if _, err := s.RunCycle(ctx, true); err != nil {
		return fmt.Errorf("initial sync cycle: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.Run(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("tracker-sync stopped")

	return nil
}

func buildTransport(ctx context.Context, cfg *config.Config) (remote.Transport, error) {
	switch cfg.RemoteBackend {
	case config.BackendS3:
		t, err := remote.NewS3(ctx, remote.S3Config{
			Bucket:    cfg.S3Bucket,
			Key:       cfg.S3Key,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("building s3 transport: %w", err)
		}

		return t, nil

	case config.BackendDir:
		return remote.NewDir(cfg.RemoteDir), nil

	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.RemoteBackend)
	}
}
