// Command lobbyserver runs the lobby-and-relay server: a single
// process taking one argument, the path to its key=value config file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/config"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/janitor"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/lobby"
)

func main() {
	if err := run(); err != nil {
		slog.Error("lobbyserver: fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: %s <config-path>", os.Args[0])
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("lobbyserver: starting", "host", cfg.HostName, "lobby_port", cfg.LobbyPort)

	coord := lobby.NewCoordinator(cfg, logger)
	handler := lobby.NewHandler(coord, cfg, logger)

	mux := http.NewServeMux()
	handler.Routes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.LobbyPort),
		Handler: mux,
	}

	j := janitor.New(coord, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Shutdown(context.Background())
	})
	g.Go(func() error {
		err := httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := j.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	return g.Wait()
}
