package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/config"
	"github.com/mcdev12/turnclock/go/internal/engine"
	"github.com/mcdev12/turnclock/go/internal/gateway"
	"github.com/mcdev12/turnclock/go/internal/migrations"
	"github.com/mcdev12/turnclock/go/internal/notify"
	"github.com/mcdev12/turnclock/go/internal/relay"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/memory"
	"github.com/mcdev12/turnclock/go/internal/store/postgres"
)

type backend interface {
	store.Store
	store.AtomicOps
	store.Prober
	gateway.Pinger
}

func main() {
	cfg, err := config.Load("")
	config.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var (
		st       backend
		changes  <-chan store.Change
		feed     gateway.ChangeFeed
		natsConn *nats.Conn
		runFeed  func(ctx context.Context, hub *gateway.RoomHub) error
	)

	switch cfg.Store {
	case config.StoreMemory:
		mem := memory.New(memory.WithClock(clock))
		room, token, err := mem.CreateRoom(ctx, store.CreateRoomParams{})
		if err != nil {
			log.Fatal().Err(err).Msg("create demo room")
		}
		log.Info().
			Str("room_code", room.Code).
			Str("dm_token", token).
			Msg("in-memory store ready with demo room")
		st = mem
		changes = mem.Subscribe(ctx)

	case config.StorePostgres:
		if err := migrations.Migrate(ctx, cfg.Database.DSN()); err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
		pg, err := postgres.Open(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pg.Close()
		st = pg

		switch cfg.NotifySource {
		case config.NotifyPostgres:
			ltCfg := notify.DefaultListenerConfig()
			ltCfg.DatabaseURL = cfg.Database.DSN()
			ltCfg.NotifyChannel = cfg.NotifyChannel
			listener, err := notify.NewListener(ltCfg, clock)
			if err != nil {
				log.Fatal().Err(err).Msg("create change listener")
			}
			feed = listener
			changes = listener.Changes()
			runFeed = func(ctx context.Context, _ *gateway.RoomHub) error {
				return listener.Start(ctx)
			}

		case config.NotifyNATS:
			jsCfg := relay.DefaultJetStreamConfig()
			jsCfg.URL = cfg.NATSURL
			consumer, err := relay.NewConsumer(jsCfg)
			if err != nil {
				log.Fatal().Err(err).Msg("create JetStream consumer")
			}
			defer consumer.Close()
			feed = consumer
			natsConn = consumer.Conn()
			runFeed = func(ctx context.Context, hub *gateway.RoomHub) error {
				return consumer.Start(ctx, hub.Dispatch)
			}
		}
	}

	log.Info().
		Str("store", cfg.Store).
		Str("notify_source", cfg.NotifySource).
		Int("port", cfg.GatewayPort).
		Msg("starting turn clock gateway")

	metrics := engine.NewCountingMetrics()
	hub := gateway.NewRoomHub(gateway.HubDeps{
		Store:        st,
		Atomic:       st,
		Prober:       st,
		Clock:        clock,
		Metrics:      metrics,
		PollInterval: cfg.PollInterval,
		RPCTimeout:   cfg.RPCTimeout,
	})

	// A mirror that has not synced for several poll intervals is stale.
	health := gateway.NewGatewayHealthChecker(st, natsConn, feed, hub, clock, 4*cfg.PollInterval)

	gwConfig := gateway.DefaultConfig()
	gwConfig.TickInterval = cfg.TickInterval
	service := gateway.NewService(gwConfig, hub, metrics, health, clock)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := gateway.NewServer(cfg.GatewayPort, mux, cfg.AllowedOrigins)

	if changes != nil {
		go hub.Run(ctx, changes)
	}
	if runFeed != nil {
		go func() {
			if err := runFeed(ctx, hub); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("change feed stopped, relying on polling")
			}
		}()
	}

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("gateway stopped")
}
