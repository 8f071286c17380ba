package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/config"
	"github.com/mcdev12/turnclock/go/internal/notify"
	"github.com/mcdev12/turnclock/go/internal/relay"
)

func main() {
	cfg, err := config.Load("")
	config.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// JetStream publisher
	jsCfg := relay.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := relay.NewPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	// Listener config
	ltCfg := notify.DefaultListenerConfig()
	ltCfg.DatabaseURL = cfg.Database.DSN()
	ltCfg.NotifyChannel = cfg.NotifyChannel

	clock := clockwork.NewRealClock()
	listener, err := notify.NewListener(ltCfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("create change listener")
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("listening to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	forwarder := relay.NewForwarder(publisher, clock, relay.DefaultForwarderConfig())
	errCh := make(chan error, 2)
	go func() {
		errCh <- listener.Start(ctx)
	}()
	go func() {
		errCh <- forwarder.Run(ctx, listener.Changes())
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("relay exited unexpectedly")
		}
	}
	log.Info().Msg("relay stopped")
}
