package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"

	"github.com/skimmerhq/skimmer/cachestore"
	"github.com/skimmerhq/skimmer/countstore"
	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/ingest"
	"github.com/skimmerhq/skimmer/store"
	"github.com/skimmerhq/skimmer/whop"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "skimmerd",
		Usage:   "content moderation daemon (skims the pond)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/skimmer/skimmer.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters and caches; in-memory fallback when empty",
			EnvVars: []string{"SKIMMER_REDIS_URL", "REDIS_URL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		seedCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the webhook and admin APIs",
			Value:   ":3899",
			EnvVars: []string{"SKIMMER_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":3898",
			EnvVars: []string{"SKIMMER_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "shared secret for webhook HMAC signature verification",
			EnvVars: []string{"WEBHOOK_SECRET"},
		},
		&cli.StringFlag{
			Name:    "whop-api-host",
			Value:   whop.DefaultAPIHost,
			EnvVars: []string{"WHOP_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "whop-api-key",
			Usage:   "platform API key; enforcement is report-only when empty",
			EnvVars: []string{"WHOP_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "webhook-rate-limit",
			Usage:   "max webhook requests per client per minute",
			Value:   100,
			EnvVars: []string{"SKIMMER_WEBHOOK_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "rule-cache-ttl",
			Usage:   "how long rule and exemption snapshots may be served before re-reading the store",
			Value:   30 * time.Second,
			EnvVars: []string{"SKIMMER_RULE_CACHE_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		configOTEL("skimmerd")

		st, err := store.NewStore(cctx.String("database-url"), logger)
		if err != nil {
			return fmt.Errorf("setting up database: %w", err)
		}

		var counters countstore.CountStore
		var cache cachestore.CacheStore
		if redisURL := cctx.String("redis-url"); redisURL != "" {
			counters, err = countstore.NewRedisCountStore(redisURL)
			if err != nil {
				return fmt.Errorf("initializing redis countstore: %w", err)
			}
			cache, err = cachestore.NewRedisCacheStore(redisURL, 30*time.Minute)
			if err != nil {
				return fmt.Errorf("initializing redis cachestore: %w", err)
			}
		} else {
			counters = countstore.NewMemCountStore()
			cache = cachestore.NewMemCacheStore(10_000, 30*time.Minute)
		}

		var enforcer engine.Enforcer = engine.NoopEnforcer{}
		if apiKey := cctx.String("whop-api-key"); apiKey != "" {
			enforcer = whop.NewClient(cctx.String("whop-api-host"), apiKey, logger)
		} else {
			logger.Info("no platform API key configured, running report-only")
		}

		source := store.NewCachedSource(st, 1_000, cctx.Duration("rule-cache-ttl"))
		eng := engine.NewEngine(source, logger)

		srv := ingest.NewServer(eng, st, source, enforcer, counters, cache, ingest.Config{
			Logger:          logger,
			WebhookSecret:   cctx.String("webhook-secret"),
			RateLimitPerMin: cctx.Int("webhook-rate-limit"),
		})

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("starting skimmerd", "bind", cctx.String("bind"))
		if err := srv.RunAPI(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("running API server: %w", err)
		}
		return nil
	},
}
