package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizsnap/internal/config"
	"quizsnap/internal/infra/memory"
	infraredis "quizsnap/internal/infra/redis"
	transport "quizsnap/internal/transport/http"
	"quizsnap/internal/transport/p2p"
)

// NewSignalCmd starts the rendezvous server hosts and guests use to find each other.
func NewSignalCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Run the room rendezvous server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignal(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", os.Getenv("PORT"), "port to listen on")
	return cmd
}

func runSignal(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Signal.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var rooms p2p.Rendezvous
	switch cfg.Signal.Backend {
	case "redis":
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		rooms = infraredis.NewRendezvous(client, config.TTLDuration(cfg.Signal.RoomTTL, 2*time.Hour))
	case "memory", "":
		rooms = memory.NewRendezvous()
	default:
		return fmt.Errorf("unknown signal backend %q", cfg.Signal.Backend)
	}

	if cfg.Log.Level != "debug" && cfg.Log.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := transport.NewSignalHandler(rooms, log.With().Str("component", "signal").Logger(), cfg.Signal.RateLimitRPS, cfg.Signal.RateBurst)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := ossignal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Str("backend", cfg.Signal.Backend).Msg("starting signalling server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down signalling server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
