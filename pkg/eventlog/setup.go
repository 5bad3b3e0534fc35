package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/grpc"

	customvalidator "github.com/madeneat/wplogify/pkg/customValidator"
	dbconnect "github.com/madeneat/wplogify/pkg/dbConnect"
	redisconnect "github.com/madeneat/wplogify/pkg/redisConnect"
	"github.com/madeneat/wplogify/pkg/utils"
)

// Service is the assembled event log: the aggregator handlers contribute
// to, the session tracker, and the gRPC interceptors that wire both into a
// server.
type Service struct {
	Config     *Config
	Aggregator *Aggregator
	Sessions   *SessionTracker
	Repository Repository
	Registry   *Registry

	// Interceptor opens and commits a scope per RPC.
	Interceptor grpc.UnaryServerInterceptor
	// ErrorHandler maps eventlog and validation errors to gRPC codes.
	ErrorHandler grpc.UnaryServerInterceptor

	closers []io.Closer
}

// UnaryInterceptors returns the interceptors in server chain order.
func (s *Service) UnaryInterceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{s.ErrorHandler, s.Interceptor}
}

// Close releases every connection opened by Setup.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup loads configPath and connects the configured backends. Postgres
// falls back to the in-memory repository when disabled, Redis to the
// in-memory session store. An unreachable search index is logged and
// skipped.
func Setup(ctx context.Context, configPath string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	var repo Repository = NewMemoryRepository()
	if cfg.Database.Enabled {
		db, err := dbconnect.ConnectSqlx(ctx, cfg.Database.DBConfig)
		if err != nil {
			return nil, persistErr("connect", err)
		}
		repo = NewPostgresRepository(db, cfg.Database.TablePrefix)
		closers = append(closers, repo)
		logger.InfoContext(ctx, "event repository connected", slog.String("backend", "postgres"))
	}

	if cfg.Elasticsearch.Enabled {
		index, err := NewElasticsearchRepository(&cfg.Elasticsearch)
		if err != nil {
			logger.WarnContext(ctx, "search index unavailable, continuing without it", slog.Any("error", err))
		} else {
			repo = NewIndexingRepository(repo, index, logger)
		}
	}

	var store SessionStore = NewMemorySessionStore()
	if cfg.Redis.Enabled {
		client, err := redisconnect.ConnectRedis(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			closeAll()
			return nil, persistErr("connect", err)
		}
		store = NewRedisSessionStore(client, cfg.Session.KeyPrefix, cfg.Session.TTL)
		closers = append(closers, client)
		logger.InfoContext(ctx, "session store connected", slog.String("backend", "redis"))
	}

	svc, err := NewService(cfg, repo, store, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	svc.closers = closers
	return svc, nil
}

// NewService assembles a Service from an already loaded configuration and
// connected backends.
func NewService(cfg *Config, repo Repository, store SessionStore, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := utils.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	normalizer := NewNormalizer(NormalizerConfig{
		Location:      loc,
		BooleanKeys:   cfg.Properties.BooleanKeys,
		ReferenceKeys: cfg.ReferenceKinds(),
	})
	factory := NewEventFactory(cfg.TrackedRoles, nil)

	aggregator := NewAggregator(AggregatorOptions{
		Normalizer: normalizer,
		Differ:     NewDiffCalculator(normalizer, cfg.Properties.ExcludedKeys, cfg.Properties.IncludedKeys),
		Sanitizer:  NewSanitizer(cfg.Properties.SensitiveKeys, cfg.Properties.Redaction, []byte(cfg.Properties.HashKey)),
		Factory:    factory,
		Repository: repo,
		Logger:     logger,
	})

	sessions := NewSessionTracker(SessionTrackerOptions{
		Store:      store,
		Repository: repo,
		Factory:    factory,
		Threshold:  cfg.Session.ContinuationThreshold,
		Logger:     logger,
	})

	return &Service{
		Config:     cfg,
		Aggregator: aggregator,
		Sessions:   sessions,
		Repository: repo,
		Registry:   NewRegistry(),
		Interceptor: NewScopeInterceptor(&InterceptorConfig{
			Aggregator:      aggregator,
			Logger:          logger,
			IncludedMethods: cfg.GRPC.IncludedMethods,
			ExcludedMethods: cfg.GRPC.ExcludedMethods,
		}),
		ErrorHandler: customvalidator.GrpcErrorHandler(GRPCCode),
	}, nil
}
