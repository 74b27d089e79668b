package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/outofforest/tilestream"
	"github.com/outofforest/tilestream/config"
	"github.com/outofforest/tilestream/dataset"
	"github.com/outofforest/tilestream/decode"
	"github.com/outofforest/tilestream/event"
	"github.com/outofforest/tilestream/source"
	"github.com/outofforest/tilestream/types"
)

const (
	sweepRadius = 2
	sweepAhead  = 4
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		envFile    = flag.String("env", ".env", "path to env file")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log := logger.Get(ctx)

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatal("Loading configuration failed", zap.Error(err))
	}

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Streaming failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config) error {
	router, closeSources, err := newRouter(ctx, cfg.Sources)
	if err != nil {
		return err
	}
	defer closeSources()

	decoder, err := decode.New()
	if err != nil {
		return err
	}
	defer decoder.Close()

	events := event.New()
	events.SubscribeAll(func(e event.Event) {
		logger.Get(ctx).Debug("Event", zap.Stringer("kind", e.Kind), zap.String("source", e.Source),
			zap.Int("tiles", len(e.Tiles)))
	})

	engine, err := tilestream.New(ctx, tilestream.Config{
		Name:      cfg.Name,
		Area:      cfg.Area.Volume(),
		Depth:     cfg.Depth,
		MaxDepth:  cfg.MaxDepth,
		RootError: cfg.RootError,
		Locator:   cfg.Locator.Build(),
		Fetcher:   router,
		Decoder:   decoder,
		Workers:   cfg.Workers,
		Events:    events,
	})
	if err != nil {
		return err
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("engine", parallel.Fail, engine.Run)
		spawn("ticker", parallel.Fail, func(ctx context.Context) error {
			return tick(ctx, engine, cfg.TickInterval)
		})
		if cfg.MetricsAddr != "" {
			spawn("metrics", parallel.Fail, func(ctx context.Context) error {
				return serveMetrics(ctx, cfg.MetricsAddr)
			})
		}
		return nil
	})
}

func newRouter(ctx context.Context, cfg config.Sources) (*source.Router, func(), error) {
	router := source.NewRouter()
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Get(ctx).Error("Closing source failed", zap.Error(err))
			}
		}
	}

	if cfg.FileRoot != "" {
		router.Route("file", source.NewFile(cfg.FileRoot))
	}

	httpSource := source.NewHTTP(&http.Client{Timeout: cfg.HTTPTimeout})
	router.Route("http", httpSource)
	router.Route("https", httpSource)

	if cfg.MBTiles != "" {
		db, err := source.OpenSQLite(ctx, cfg.MBTiles)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		router.Route("mbtiles", db)
	}

	if cfg.Redis.Addr != "" {
		r, err := source.NewRedis(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, r.Close)
		router.Route("redis", r)
	}

	return router, closeAll, nil
}

func tick(ctx context.Context, engine *tilestream.Engine, interval time.Duration) error {
	var leaves []types.TileIndex
	engine.TileSet().Walk(func(index types.TileIndex, _ int) bool {
		if len(engine.TileSet().ChildrenOf(index)) == 0 {
			leaves = append(leaves, index)
		}
		return true
	})
	s := newSweep(leaves, sweepRadius, sweepAhead)

	log := logger.Get(ctx)
	log.Info("Streaming started", zap.Int("leaves", len(leaves)), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-engine.Completions():
			if err := engine.Tick(ctx, dataset.Selection{}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := engine.Tick(ctx, s.next()); err != nil {
				return err
			}
			stats := engine.Cache().Stats()
			log.Debug("Tick",
				zap.Int("warm", len(engine.DataSet().WarmTiles())),
				zap.Int("hot", len(engine.DataSet().HotTiles())),
				zap.Uint64("fetches", stats.Fetches),
				zap.Uint64("failures", stats.Failures))
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("server", parallel.Fail, func(ctx context.Context) error {
			logger.Get(ctx).Info("Serving metrics", zap.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.WithStack(err)
			}
			return errors.WithStack(ctx.Err())
		})
		spawn("shutdown", parallel.Fail, func(ctx context.Context) error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return errors.WithStack(err)
			}
			return errors.WithStack(ctx.Err())
		})
		return nil
	})
}
