package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

import (
	"github.com/nanjiek/pixiu-debounce/internal/api"
	"github.com/nanjiek/pixiu-debounce/internal/breaker"
	"github.com/nanjiek/pixiu-debounce/internal/config"
	"github.com/nanjiek/pixiu-debounce/internal/debounce"
	"github.com/nanjiek/pixiu-debounce/internal/interceptor"
	"github.com/nanjiek/pixiu-debounce/internal/logging"
	"github.com/nanjiek/pixiu-debounce/internal/metrics"
	"github.com/nanjiek/pixiu-debounce/internal/repo"
	"github.com/nanjiek/pixiu-debounce/internal/rules"
	"github.com/nanjiek/pixiu-debounce/internal/rules/source"
	"github.com/nanjiek/pixiu-debounce/internal/shields"
)

func main() {
	confPath := flag.String("c", "configs/debounce.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := rules.NewStore(cfg.Source.Format, logger.Named("rules"))
	store.AddObserver(func(set *rules.RuleSet) { m.ObserveReload(len(set.Rules), set.Err) })

	// Redis backs both the redis source and PUT /v1/rules.
	var rdb *repo.RedisRepo
	if cfg.Redis.Enabled() {
		var opts []repo.Option
		if cfg.Redis.OpTimeoutMs > 0 {
			opts = append(opts, repo.WithDefaultTimeout(time.Duration(cfg.Redis.OpTimeoutMs)*time.Millisecond))
		}
		rdb, err = repo.NewRedis(cfg.Redis, logger.Named("redis"), opts...)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	src, fileSrc, err := buildSource(cfg, rdb)
	if err != nil {
		logger.Fatal("failed to build rule source", zap.Error(err))
	}

	var poller *rules.Poller
	if src == nil {
		store.Bootstrap(cfg.BootstrapRules)
	} else {
		poller = rules.NewPoller(src, store, rules.PollerConfig{
			Interval:     time.Duration(cfg.Source.PollIntervalMs) * time.Millisecond,
			FailPolicy:   cfg.Features.FailPolicy,
			OnFetchError: func(error) { m.ObserveFetchFailure() },
		}, logger.Named("poller"))
		go poller.Start(rootCtx)
	}

	gate, err := shields.NewSettings(cfg.Features.Debounce, cfg.Shields.DisabledSites)
	if err != nil {
		logger.Fatal("invalid shields config", zap.Error(err))
	}

	svc := debounce.NewService(store, logger.Named("debounce"))
	throttles := interceptor.NewFactory(cfg.Features.Debounce, interceptor.Deps{
		Debouncer: svc,
		Gate:      gate,
		Metrics:   m,
		Logger:    logger.Named("throttle"),
	})

	deps := api.Deps{
		Service:   svc,
		Store:     store,
		Throttles: throttles,
		Gate:      gate,
		Format:    cfg.Source.Format,
		Metrics:   m,
		Gatherer:  reg,
		Logger:    logger.Named("api"),
	}
	if poller != nil {
		deps.Syncer = poller
	}
	if rdb != nil {
		deps.Publisher = rdb
	}
	if fileSrc != nil {
		deps.Component = fileSrc
	}
	httpServer := api.NewServer(cfg.Server, deps)

	go func() {
		logger.Info("server is running", zap.String("addr", cfg.Server.HTTPAddr),
			zap.Int("pid", os.Getpid()), zap.String("source", cfg.Source.Kind))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server exited properly")
}

// buildSource returns nil when rules come from bootstrapRules only. The
// *FileSource is also returned for the file kind so the component updater
// can report new install directories.
func buildSource(cfg *config.Config, rdb *repo.RedisRepo) (source.RuleSource, *source.FileSource, error) {
	var (
		src    source.RuleSource
		file   *source.FileSource
		remote bool
	)
	switch cfg.Source.Kind {
	case config.SourceFile:
		file = source.NewFileSource(cfg.File.InstallDir)
		src = file
	case config.SourceNacos:
		src = source.NewNacosSource(cfg.Nacos, cfg.Source.Format)
		remote = true
	case config.SourceRedis:
		src = source.NewRedisSource(rdb, cfg.Source.Format, repo.IsNotFound)
		remote = true
	default:
		return nil, nil, nil
	}

	if remote && cfg.Breaker.Enabled {
		resource := "debounce-rules-" + cfg.Source.Kind
		if err := breaker.Init(cfg.Breaker, resource); err != nil {
			return nil, nil, err
		}
		src = breaker.WithBreaker(src, resource)
	}
	return src, file, nil
}
