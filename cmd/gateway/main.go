// The gateway binary wires the enforcement pipeline and runs it in front of
// a single upstream. main assembles dependencies from the environment and
// owns process lifecycle; all enforcement logic lives in internal packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"perimeter/internal/audit"
	auditmetrics "perimeter/internal/audit/metrics"
	"perimeter/internal/authz"
	"perimeter/internal/gateway"
	gatewaymetrics "perimeter/internal/gateway/metrics"
	"perimeter/internal/platform/config"
	"perimeter/internal/platform/httpserver"
	"perimeter/internal/platform/logger"
	platformredis "perimeter/internal/platform/redis"
	"perimeter/internal/ratelimit"
	ratelimitmetrics "perimeter/internal/ratelimit/metrics"
	"perimeter/internal/ratelimit/store/counter"
	"perimeter/internal/token"
)

const shutdownTimeout = 10 * time.Second

// Audit topic geometry for EnsureTopic. Replication factor 1 suits the
// single-broker deployments this gateway ships with; raise it via broker
// defaults for multi-node clusters.
const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSigningKey == config.DevJWTSigningKey {
		log.Warn("using the built-in development signing key; set JWT_SIGNING_KEY before exposing this gateway")
	}

	recorder, err := audit.NewRecorder(cfg.InstanceID,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("audit recorder: %w", err)
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	worker, err := audit.NewWorker(recorder, sinks)
	if err != nil {
		return fmt.Errorf("audit worker: %w", err)
	}

	store, closeStore, err := buildCounterStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, err := ratelimit.NewLimiter(store, quotaConfig(cfg.RateLimit),
		ratelimit.WithLogger(log),
		ratelimit.WithAudit(recorder),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	validator, err := token.NewValidator([]byte(cfg.JWTSigningKey),
		token.WithLogger(log),
		token.WithAudit(recorder),
	)
	if err != nil {
		return fmt.Errorf("token validator: %w", err)
	}

	table := authz.DefaultTable()
	if cfg.AuthzRules != "" {
		table, err = authz.ParseRules(cfg.AuthzRules)
		if err != nil {
			return fmt.Errorf("parse AUTHZ_RULES: %w", err)
		}
	}
	authorizer, err := authz.NewAuthorizer(table,
		authz.WithLogger(log),
		authz.WithAudit(recorder),
	)
	if err != nil {
		return fmt.Errorf("authorizer: %w", err)
	}

	proxy, err := gateway.NewProxy(cfg.UpstreamURL, gateway.WithProxyLogger(log))
	if err != nil {
		return fmt.Errorf("upstream proxy: %w", err)
	}

	pipeline, err := gateway.NewPipeline(validator, limiter, authorizer, proxy,
		gateway.WithLogger(log),
		gateway.WithAudit(recorder),
		gateway.WithMetrics(gatewaymetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	// The admin surface stays unmounted unless an operator key hash is
	// configured; there is no unauthenticated fallback.
	var admin *gateway.AdminHandler
	if cfg.AdminKeyHash != "" {
		admin, err = gateway.NewAdminHandler(limiter, cfg.AdminKeyHash, log)
		if err != nil {
			return fmt.Errorf("admin handler: %w", err)
		}
	}

	srv := httpserver.New(cfg.Addr, gateway.NewRouter(pipeline, admin, log))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("gateway listening",
			"addr", cfg.Addr,
			"upstream", cfg.UpstreamURL,
			"instance_id", cfg.InstanceID,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// buildSinks assembles the audit fan-out. The log sink is always present;
// Kafka and the Postgres archive join when configured. The returned close
// function releases whatever was opened, in reverse order.
func buildSinks(ctx context.Context, cfg config.Config, log *slog.Logger) ([]audit.Sink, func(), error) {
	logSink, err := audit.NewLogSink(log)
	if err != nil {
		return nil, nil, fmt.Errorf("log sink: %w", err)
	}
	sinks := []audit.Sink{logSink}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.Topic)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("kafka sink: %w", err)
		}
		closers = append(closers, kafkaSink.Close)
		if err := kafkaSink.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplication); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure audit topic: %w", err)
		}
		sinks = append(sinks, kafkaSink)
		log.Info("audit events publishing to kafka",
			"brokers", cfg.Audit.KafkaBrokers,
			"topic", cfg.Audit.Topic,
		)
	}

	if cfg.Audit.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Audit.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open audit database: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		archive, err := audit.NewArchiveSink(db)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("archive sink: %w", err)
		}
		if err := archive.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("ensure audit schema: %w", err)
		}
		sinks = append(sinks, archive)
		log.Info("audit events archiving to postgres")
	}

	return sinks, closeAll, nil
}

// buildCounterStore connects the limiter to Redis when configured and falls
// back to the in-process store otherwise. The fallback keeps a single-node
// deployment working but quotas will not hold across instances.
func buildCounterStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ratelimit.CounterStore, func(), error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		log.Warn("REDIS_URL not set; rate limit counters are process-local")
		return counter.NewInMemoryCounterStore(), func() {}, nil
	}
	log.Info("rate limit counters backed by redis")
	return counter.NewRedisCounterStore(client.Client), func() { _ = client.Close() }, nil
}

func quotaConfig(rl config.RateLimitConfig) ratelimit.Config {
	return ratelimit.Config{
		Window:        rl.Window,
		Grace:         rl.Grace,
		AdminLimit:    rl.Admin,
		StandardLimit: rl.Standard,
		DefaultLimit:  rl.Default,
		EndpointLimit: rl.Endpoint,
		GlobalLimit:   rl.Global,
		FailOpen:      rl.FailOpen,
	}
}
