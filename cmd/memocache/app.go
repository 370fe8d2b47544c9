package main

import (
	"context"
	"time"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/config"
	"github.com/agentuity/go-memocache/docstore"
	"github.com/agentuity/go-memocache/logger"
	"github.com/agentuity/go-memocache/resilience"
	"github.com/agentuity/go-memocache/telemetry"
	"github.com/agentuity/go-memocache/web"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configFile string
	cfg        *config.Config
	log        logger.Logger

	store    cache.Store
	client   *redis.Client
	docs     docstore.Collection
	shutdown telemetry.ShutdownFunc
}

const serviceName = "memocache"

// load reads the configuration and applies any flags set on cmd.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("store", &cfg.Store)
	str("redis-url", &cfg.RedisURL)
	str("prefix", &cfg.Prefix)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("docstore", &cfg.Docstore)
	str("history", &cfg.History)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.NewLogger()
	if cfg.OTLPURL != "" {
		token := cfg.OTLPToken
		if cfg.OTLPSecret != "" {
			if token, err = telemetry.GenerateOTLPBearerToken(cfg.OTLPSecret, serviceName); err != nil {
				return err
			}
		}
		if a.shutdown, err = telemetry.New(cmd.Context(), cfg.OTLPURL, token, serviceName); err != nil {
			return err
		}
		a.log.Debug("exporting traces to %s", cfg.OTLPURL)
	}
	return nil
}

// openStore connects the configured backing store.
func (a *app) openStore(ctx context.Context) (cache.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	opts := []cache.Option{
		cache.WithPrefix(a.cfg.Prefix),
		cache.WithQueryTimeout(time.Duration(a.cfg.QueryTimeout)),
		cache.WithStoreLogger(a.log),
	}
	switch a.cfg.Store {
	case config.StoreRedis:
		redisOpts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "connect to redis")
		}
		a.client = client
		a.store = cache.NewRedis(client, opts...)
		a.log.Debug("connected to redis at %s", redisOpts.Addr)
	default:
		a.store = cache.NewInMemory(ctx, opts...)
	}
	return a.store, nil
}

func (a *app) recorderOptions() []cache.RecorderOption {
	return []cache.RecorderOption{
		cache.WithHistoryMode(a.cfg.HistoryMode()),
		cache.WithRecorderLogger(a.log),
	}
}

// newCache returns a Cache over the configured store. Existing data is kept
// unless flush is set.
func (a *app) newCache(ctx context.Context, flush bool) (*cache.Cache, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	opts := []cache.CacheOption{
		cache.WithLogger(a.log),
		cache.WithRecorderOptions(a.recorderOptions()...),
	}
	if !flush {
		opts = append(opts, cache.WithoutFlush())
	}
	return cache.New(ctx, store, opts...)
}

// newMemoizer returns a Memoizer over the configured store fetching with
// fetchFn, or with a web.Fetcher when fetchFn is nil.
func (a *app) newMemoizer(ctx context.Context, fetchFn cache.FetchFunc) (*cache.Memoizer, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if fetchFn == nil {
		webOpts := []web.Option{
			web.WithMarkdown(a.cfg.Markdown),
			web.WithLogger(a.log),
		}
		if a.cfg.BreakerFailures > 0 {
			webOpts = append(webOpts, web.WithCircuitBreaker(resilience.CircuitBreakerConfig{
				MaxFailures: a.cfg.BreakerFailures,
				Timeout:     time.Duration(a.cfg.BreakerTimeout),
			}))
		}
		fetchFn = web.NewFetcher(webOpts...).Fetch
	}
	opts := []cache.MemoOption{
		cache.WithTTL(time.Duration(a.cfg.TTL)),
		cache.WithFetchTimeout(time.Duration(a.cfg.FetchTimeout)),
		cache.WithMemoLogger(a.log),
		cache.WithMemoRecorder(cache.NewRecorder(store, a.recorderOptions()...)),
	}
	if a.cfg.SingleFlight {
		opts = append(opts, cache.WithSingleFlight())
	}
	return cache.NewMemoizer(store, fetchFn, opts...), nil
}

// openDocs opens the bbolt document store holding collection.
func (a *app) openDocs(collection string) (docstore.Collection, error) {
	if a.docs != nil {
		return a.docs, nil
	}
	docs, err := docstore.OpenBolt(a.cfg.Docstore, collection)
	if err != nil {
		return nil, err
	}
	a.docs = docs
	return docs, nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
		a.docs = nil
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
		a.shutdown = nil
	}
	return errors.Join(errs...)
}
