package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/app"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/certificates"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/codegen"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/config"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/ratelimit"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/tracing"
	grpcserver "github.com/dessources/Go-rate-limited-url-shortener/server/grpc"
)

// application собранный сервис со всеми зависимостями
type application struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	links    *store.URLStore
	limiter  *ratelimit.Limiter
	registry *metrics.Registry
	handler  http.Handler
	api      *app.Handler
	grpc     *grpc.Server

	stopTracing tracing.ShutdownFunc
}

// newLogger debug уровень включает человекочитаемый development вывод
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// openRepository хранилище по cfg.StorageType
func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.StorageType {
	case config.StorageDB:
		repo, err := store.NewPostgresRepository(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		repo := store.NewRedisRepository(client, config.AppName)
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return repo, nil
	case config.StorageMemory:
		return store.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

// build собирает сервис: хранилище, генератор, ограничитель, метрики, транспорты
func build(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*application, error) {
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	gen, err := codegen.New()
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	registry := metrics.NewRegistry()
	links := store.New(repo, gen,
		store.WithRecorder(registry),
		store.WithPolicy(store.Policy{MaxLength: cfg.MaxURLLength, Schemes: cfg.AllowedSchemes}),
	)
	if err := links.SeedMetrics(ctx); err != nil {
		logger.Warnw("failed to count stored links", "error", err)
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		GlobalCapacity: cfg.GlobalCapacity,
		GlobalRate:     cfg.GlobalRate,
		ClientCapacity: cfg.ClientCapacity,
		ClientRate:     cfg.ClientRate,
		ClientIdleTTL:  cfg.ClientIdleTTL,
		EvictEvery:     cfg.ClientEvictEvery,
	}, ratelimit.WithRecorder(registry))
	if err != nil {
		_ = links.Close()
		return nil, err
	}
	registry.SetGlobal(limiter.Global())

	keys := auth.NewKeyRing(cfg.SecretKey, cfg.APIKeys)
	if keys.Open() {
		logger.Warnw("API_KEYS is empty, any non-empty API key is accepted")
	}

	service := &app.Service{
		Links:   links,
		Limiter: limiter,
		Auth:    keys,
		Metrics: registry,
	}

	server := app.NewServer(service, logger, app.Options{
		BaseURL:        cfg.BaseAddress,
		StreamInterval: cfg.MetricsStreamInterval,
		StaticDir:      cfg.StaticDir,
		TrustedSubnet:  cfg.TrustedSubnet,
		CORSOrigins:    cfg.CORSOrigins,
		Exporter:       metrics.NewExporter(registry),
	})

	a := &application{
		cfg:      cfg,
		logger:   logger,
		links:    links,
		limiter:  limiter,
		registry: registry,
		handler:  server.Router,
		api:      server.Handler,
	}

	if cfg.TracingEnabled {
		stop, err := tracing.Init(ctx, cfg.OTLPEndpoint, config.AppName)
		if err != nil {
			logger.Warnw("tracing disabled", "error", err)
		} else {
			a.stopTracing = stop
			a.handler = otelhttp.NewHandler(server.Router, config.AppName)
		}
	}

	if cfg.GRPCAddress != "" {
		a.grpc = grpcserver.NewServer(service, logger)
	}

	return a, nil
}

// certHosts имена для самоподписанного сертификата: localhost и хост BASE_URL
func certHosts(baseURL string) []string {
	hosts := []string{"localhost", "127.0.0.1"}
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" && u.Hostname() != "localhost" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

// serve поднимает HTTP(S) и gRPC и ждёт отмены ctx, затем плавно останавливает всё
func (a *application) serve(ctx context.Context) error {
	go a.limiter.Run(ctx, func(n int) {
		a.logger.Debugw("idle clients evicted", "count", n)
	})

	srv := &http.Server{
		Addr:              a.cfg.Address,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(a.api.CloseStreams)

	if a.cfg.EnableHTTPS {
		created, err := certificates.Ensure(a.cfg.CertFile, a.cfg.KeyFile, certHosts(a.cfg.BaseAddress))
		if err != nil {
			return fmt.Errorf("tls certificate: %w", err)
		}
		if created {
			a.logger.Infow("self-signed certificate generated", "cert", a.cfg.CertFile, "key", a.cfg.KeyFile)
		}
	}

	var lis net.Listener
	if a.grpc != nil {
		var err error
		if lis, err = net.Listen("tcp", a.cfg.GRPCAddress); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	errCh := make(chan error, 2)

	go func() {
		a.logger.Infow("Starting server", "addr", a.cfg.Address, "https", a.cfg.EnableHTTPS, "storage", a.cfg.StorageType)
		var err error
		if a.cfg.EnableHTTPS {
			err = srv.ListenAndServeTLS(a.cfg.CertFile, a.cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if lis != nil {
		go func() {
			a.logger.Infow("Starting gRPC server", "addr", a.cfg.GRPCAddress)
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Infow("Shutting down")
	case serveErr = <-errCh:
		a.logger.Errorw("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnw("http shutdown", "error", err)
	}
	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(shutdownCtx); err != nil {
			a.logger.Warnw("tracing shutdown", "error", err)
		}
	}
	return serveErr
}

// close освобождает хранилище
func (a *application) close() {
	if err := a.links.Close(); err != nil {
		a.logger.Warnw("storage close", "error", err)
	}
}
