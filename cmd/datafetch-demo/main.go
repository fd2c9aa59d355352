package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/n-r-w/datafetch"
	"github.com/n-r-w/datafetch/config"
	"github.com/n-r-w/datafetch/internal/demoserver"
	"github.com/n-r-w/datafetch/logging"
	"github.com/n-r-w/datafetch/metrics"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file")
		envPrefix  = flag.String("env-prefix", config.EnvPrefix, "environment variable prefix")
		serve      = flag.Bool("serve", false, "keep the demo server running after the walkthrough")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*envPrefix, *configFile).Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, flush, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}
	defer func() { _ = flush() }()

	if err := run(ctx, cfg, logger, *serve); err != nil {
		logger.Error("demo failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, serve bool) error {
	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	tp := sdktrace.NewTracerProvider()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}()

	serverOpts := demoserver.Options{
		Logger:      logger.Named("demoserver"),
		Metrics:     recorder.Handler(),
		MetricsPath: cfg.Demo.MetricsPath,
	}
	router := demoserver.NewRouter(demoserver.New(serverOpts), serverOpts)

	if cfg.HTTP.BaseURL == "" {
		cfg.HTTP.BaseURL = (&url.URL{Scheme: "http", Host: cfg.Demo.Listen}).String()
	}

	providerOpts := append(cfg.ProviderOptions(),
		datafetch.WithLogger(logger.Named("datafetch")),
		datafetch.WithMetrics(recorder),
		datafetch.WithTracerProvider(tp),
		datafetch.WithScreenReaderAlert(func(message string) {
			logger.Info("announcement", zap.String("message", message))
		}),
	)
	provider, err := datafetch.NewProvider(providerOpts...)
	if err != nil {
		return err
	}
	defer provider.Close()

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error {
		return demoserver.Run(gctx, cfg.Demo.Listen, router, logger)
	})
	g.Go(func() error {
		defer func() {
			if !serve {
				stopServer()
			}
		}()
		return walkthrough(datafetch.WithProvider(gctx, provider), logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// walkthrough exercises every managed abstraction against the demo server.
func walkthrough(ctx context.Context, logger *zap.Logger) error {
	if err := waitReady(ctx); err != nil {
		return err
	}

	userinfo, err := datafetch.ExecutorFromContext(ctx, "/userinfo",
		datafetch.WithAlert("user info loaded"))
	if err != nil {
		return err
	}
	for range 2 {
		res, err := userinfo.Get(ctx, nil)
		if err != nil {
			return err
		}
		logger.Info("userinfo", zap.Any("data", res.Data()), zap.Bool("cached", res.Cached))
	}

	provider, _ := datafetch.FromContext(ctx)

	items := datafetch.NewCollection(provider, "/randomIds", datafetch.CollectionOptions[demoserver.Item]{
		OnFailure: func(res datafetch.Result) { logger.Warn("items fetch failed", zap.Error(res.Err)) },
	})
	items.Mount(ctx)
	items.Wait()
	if _, err := items.Post(ctx, nil); err != nil {
		return err
	}
	values := items.Values()
	if len(values) == 0 {
		return errors.New("collection is empty after create")
	}
	last := values[len(values)-1]
	if _, err := items.Patch(ctx, last); err != nil {
		return err
	}
	if _, err := items.Destroy(ctx, last, last.ID); err != nil {
		return err
	}
	logger.Info("collection", zap.Any("items", items.Values()), zap.Stringer("state", items.RequestState()))

	echo := datafetch.NewSingleton(provider, "/echo/demo", datafetch.SingletonOptions[demoserver.Item]{})
	if _, err := echo.Get(ctx); err != nil {
		return err
	}
	if _, err := echo.Put(ctx, nil); err != nil {
		return err
	}
	if v, ok := echo.Value(); ok {
		logger.Info("singleton", zap.String("id", v.ID), zap.String("data", v.Data))
	}

	slow := datafetch.NewMountFetch(provider, "/userinfo/slow", datafetch.MountOptions{
		CancelOnUnmount: true,
		OnSuccess:       func(datafetch.Result) { logger.Info("slow fetch finished") },
	})
	slow.Mount(ctx)
	slow.Unmount()
	slow.Wait()
	logger.Info("slow fetch aborted on unmount")

	return nil
}

func waitReady(ctx context.Context) error {
	p, ok := datafetch.FromContext(ctx)
	if !ok {
		return datafetch.ErrNoProviderInContext
	}
	ping := p.Executor("/ping", datafetch.UseCache(false))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, err := ping.Get(ctx, nil)
		if err != nil {
			return err
		}
		if res.OK() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return errors.New("demo server not ready after 5s")
}
