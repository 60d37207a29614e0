package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jrizzo9/multiplayer-arcade/internal/config"
	"github.com/jrizzo9/multiplayer-arcade/internal/httpapi"
	"github.com/jrizzo9/multiplayer-arcade/internal/hub"
	"github.com/jrizzo9/multiplayer-arcade/internal/lobby"
	"github.com/jrizzo9/multiplayer-arcade/internal/logging"
	"github.com/jrizzo9/multiplayer-arcade/internal/profile"
	"github.com/jrizzo9/multiplayer-arcade/internal/store"
	"github.com/jrizzo9/multiplayer-arcade/internal/wins"
	"github.com/jrizzo9/multiplayer-arcade/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		profiles profile.Lookup
		recorder wins.Recorder = wins.Discard{}
	)
	if cfg.DatabaseURL != "" {
		st, openErr := store.Open(ctx, cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, st.Close()) }()
		profiles, recorder = st, st
		log.Info("using postgres for profiles and wins")
	} else {
		log.Warn("DATABASE_URL not set, profiles are generated and wins are not kept")
	}

	sink := wins.NewAsync(recorder, log, 128)
	h := hub.NewHub(ctx, lobby.Options{
		Countdown:     cfg.Countdown,
		CountdownTick: cfg.CountdownTick,
		Log:           log,
		Wins:          sink,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, ws.Options{
			Profiles:   profiles,
			Log:        log,
			OutboxSize: cfg.OutboxSize,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sink.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		h.Shutdown("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
