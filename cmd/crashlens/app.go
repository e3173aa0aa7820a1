package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/config"
	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/logging"
	"github.com/cozy-crashes/crashlens/internal/parsers"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/processors"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
	"github.com/cozy-crashes/crashlens/internal/retrievers"
	"github.com/cozy-crashes/crashlens/internal/telemetry"
)

// app wires the shared dependencies of every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	client   *httpclient.Client
	remote   *remoteconfig.Cache
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func loadApp(cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.General.LogLevel, cfg.General.Debug)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	if cfg.Telemetry.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if a.metrics, err = telemetry.NewMetrics(a.registry); err != nil {
			return nil, err
		}
	}

	r := cfg.Retrieval
	a.client = httpclient.New(r.Timeout, r.Retries, r.Backoff,
		httpclient.WithMaxBytes(r.MaxBytes),
		httpclient.WithUserAgent(r.UserAgent))
	return a, nil
}

// bootstrapRemote builds the config cache and performs the first fetch.
// A failed fetch is fatal only when remote.required is set.
func (a *app) bootstrapRemote(ctx context.Context) error {
	var src remoteconfig.Source
	if a.cfg.Remote.URL != "" {
		rc := a.cfg.Remote
		var err error
		src, err = remoteconfig.NewSource(rc.URL, httpclient.New(rc.Timeout, a.cfg.Retrieval.Retries, a.cfg.Retrieval.Backoff,
			httpclient.WithUserAgent(a.cfg.Retrieval.UserAgent)))
		if err != nil {
			return err
		}
	}
	cache, err := remoteconfig.NewCache(src, a.logger,
		remoteconfig.WithInterval(a.cfg.Remote.RefreshInterval),
		remoteconfig.WithCron(a.cfg.Remote.RefreshCron),
		remoteconfig.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.remote = cache
	if err := cache.Bootstrap(ctx); err != nil {
		if a.cfg.Remote.Required {
			return fmt.Errorf("bootstrap remote config: %w", err)
		}
		a.logger.Warn("using built-in config", zap.Error(err))
	}
	return nil
}

// buildPipeline registers the default stages. extra retrievers are added
// after the defaults.
func (a *app) buildPipeline(ctx context.Context, extra ...pipeline.Retriever) error {
	p := pipeline.New(a.logger,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithConcurrency(a.cfg.Retrieval.Concurrency))

	deps := retrievers.Deps{
		Client:         a.client,
		Logger:         a.logger,
		CacheTTL:       a.cfg.Retrieval.CacheTTL,
		BrowserEnabled: a.cfg.Retrieval.BrowserEnabled,
		BrowserTimeout: a.cfg.Retrieval.BrowserTimeout,
		MaxBytes:       a.cfg.Retrieval.MaxBytes,
		GistAPI:        a.cfg.Retrieval.GistAPI,
	}
	if rc := a.cfg.Storage.Redis; rc.Enabled() {
		client, err := retrievers.DialRedis(ctx, rc.Addr(), rc.Password, rc.DB, rc.Timeout)
		if err != nil {
			a.logger.Warn("body cache disabled", zap.String("addr", rc.Addr()), zap.Error(err))
		} else {
			deps.Cache = retrievers.RedisBodyCache{Client: client}
			a.closers = append(a.closers, client.Close)
		}
	}

	if err := retrievers.RegisterDefaults(p, deps); err != nil {
		return err
	}
	for _, r := range extra {
		if err := p.Retrievers().Register(r); err != nil {
			return err
		}
	}
	if err := parsers.RegisterDefaults(p); err != nil {
		return err
	}
	if err := processors.RegisterDefaults(p); err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
