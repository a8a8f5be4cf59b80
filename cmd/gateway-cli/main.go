package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/84hero/stream-gateway/internal/server"
	"github.com/84hero/stream-gateway/pkg/config"
	"github.com/84hero/stream-gateway/pkg/dispatch"
	"github.com/84hero/stream-gateway/pkg/sink"
	"github.com/84hero/stream-gateway/pkg/storage"
	"github.com/ethereum/go-ethereum/log"
)

func main() {
	if err := Run(context.Background()); err != nil && err != context.Canceled {
		log.Crit("Application failed", "err", err)
		os.Exit(1)
	}
}

func initStore(cfg *config.Config) (storage.SeenStore, error) {
	switch cfg.Dedup.Backend {
	case "", "memory":
		return storage.NewMemoryStore(cfg.Dedup.Retention), nil
	case "redis":
		return storage.NewRedisStore(
			cfg.Dedup.Redis.Addr,
			cfg.Dedup.Redis.Password,
			cfg.Dedup.Redis.DB,
			cfg.Dedup.Redis.Prefix,
			cfg.Dedup.Retention,
		)
	case "postgres":
		return storage.NewPostgresStore(cfg.Dedup.Postgres.URL, cfg.Dedup.Postgres.TablePrefix, cfg.Dedup.Retention)
	}
	return nil, errors.New("unknown dedup backend: " + cfg.Dedup.Backend)
}

func initSinks(cfg *config.Config) []sink.Sink {
	var sinks []sink.Sink

	if cfg.Sinks.Console.Enabled {
		sinks = append(sinks, sink.NewConsoleSink())
	}

	if cfg.Sinks.File.Enabled {
		if fs, err := sink.NewFileSink(cfg.Sinks.File.Path); err == nil {
			sinks = append(sinks, fs)
		} else {
			log.Warn("File sink disabled", "err", err)
		}
	}

	if cfg.Sinks.Slack.Enabled {
		sinks = append(sinks, sink.NewSlackSink(cfg.Sinks.Slack.HookURL))
	}

	if cfg.Sinks.Social.Enabled {
		sinks = append(sinks, sink.NewSocialSink(cfg.Sinks.Social.APIURL, cfg.Sinks.Social.Token))
	}

	if cfg.Sinks.Email.Enabled {
		e := cfg.Sinks.Email
		sinks = append(sinks, sink.NewEmailSink(e.Host, e.Username, e.Password, e.From, e.To))
	}

	if cfg.Sinks.Forward.Enabled {
		sinks = append(sinks, sink.NewForwardSink(cfg.Sinks.Forward.URL, cfg.Sinks.Forward.Secret))
	}

	if cfg.Sinks.Redis.Enabled {
		r := cfg.Sinks.Redis
		if rs, err := sink.NewRedisSink(r.Addr, r.Password, r.DB, r.Key, r.Mode); err == nil {
			sinks = append(sinks, rs)
		} else {
			log.Warn("Redis sink disabled", "err", err)
		}
	}

	if cfg.Sinks.Kafka.Enabled {
		k := cfg.Sinks.Kafka
		if ks, err := sink.NewKafkaSink(k.Brokers, k.Topic, k.User, k.Password); err == nil {
			sinks = append(sinks, ks)
		} else {
			log.Warn("Kafka sink disabled", "err", err)
		}
	}

	if cfg.Sinks.RabbitMQ.Enabled {
		r := cfg.Sinks.RabbitMQ
		if rs, err := sink.NewRabbitMQSink(r.URL, r.Exchange, r.RoutingKey, r.QueueName, r.Durable); err == nil {
			sinks = append(sinks, rs)
		} else {
			log.Warn("RabbitMQ sink disabled", "err", err)
		}
	}

	return sinks
}

// sweeper purges expired seen-event records for backends without native TTL.
func sweeper(ctx context.Context, store storage.SeenStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch s := store.(type) {
			case *storage.MemoryStore:
				if n := s.Sweep(); n > 0 {
					log.Debug("Swept expired records", "removed", n)
				}
			case *storage.PostgresStore:
				if n, err := s.Sweep(ctx); err != nil {
					log.Warn("Seen-event sweep failed", "err", err)
				} else if n > 0 {
					log.Debug("Swept expired records", "removed", n)
				}
			}
		}
	}
}

// Run is the testable entry point of the gateway application
func Run(ctx context.Context) error {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logLevel := log.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = log.LevelDebug
	case "warn":
		logLevel = log.LevelWarn
	case "error":
		logLevel = log.LevelError
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, logLevel, true)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	go sweeper(runCtx, store, cfg.Dedup.SweepInterval)

	sinks := initSinks(cfg)
	if len(sinks) == 0 {
		log.Warn("No sinks configured, events will only be counted")
	}

	dispatcher := dispatch.New(dispatch.Config{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
		Timeout:        cfg.Dispatch.Timeout,
		RateLimit:      cfg.Dispatch.RateLimit,
		RateBurst:      cfg.Dispatch.RateBurst,
	}, sinks...)
	defer dispatcher.Close()

	gw := server.New(server.Config{
		Secret:       cfg.Server.Secret,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, store, dispatcher)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", "addr", cfg.Server.Listen, "sinks", len(sinks), "dedup", cfg.Dedup.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutting down...")
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "err", err)
	}

	// Let in-flight sink deliveries finish before sinks close
	if !gw.Drain(cfg.Server.ShutdownTimeout) {
		log.Warn("Background deliveries still in flight at shutdown")
	}

	return ctx.Err()
}
