package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/upb/identity-gateway/config"
	"github.com/upb/identity-gateway/gateway"
	"github.com/upb/identity-gateway/identity"
	"github.com/upb/identity-gateway/metrics"
	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/repositories/postgres"
	"github.com/upb/identity-gateway/services/account"
	"github.com/upb/identity-gateway/services/apikey"
	"github.com/upb/identity-gateway/services/audit"
	"github.com/upb/identity-gateway/services/entitlement"
	"github.com/upb/identity-gateway/services/ratelimit"
	idsync "github.com/upb/identity-gateway/services/sync"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. It is the central wiring
// point: construct with NewDependencies, call Start before serving, Close on
// shutdown.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users          repositories.UserRepository
	Roles          repositories.RoleRepository
	APIKeys        repositories.APIKeyRepository
	SecurityEvents repositories.SecurityEventRepository
	TxManager      repositories.TransactionManager

	// Identity provider
	Provider identity.Provider
	Verifier *identity.Verifier

	// Services
	Sync         *idsync.Service
	Entitlements *entitlement.Service
	Limiter      ratelimit.Limiter
	Keys         *apikey.Service
	Auditor      *audit.Service
	Accounts     *account.Service

	// Gateway
	Runtime        *config.Runtime
	Metrics        *metrics.Metrics
	Pipeline       *gateway.Pipeline
	AuthMiddleware *middleware.AuthMiddleware

	redis         *rdb.Client
	memoryLimiter *ratelimit.MemoryLimiter
	cleanupCancel context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initIdentity(cfg)

	if err := deps.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initGateway(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize gateway: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Start launches the background workers: the audit writer pool and the
// rate-limiter cleanup loop. Must be called once before serving traffic.
func (d *Dependencies) Start() error {
	if err := d.Auditor.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cleanupCancel = cancel
	if d.memoryLimiter != nil {
		go d.memoryLimiter.StartCleanupWorker(ctx, 5*time.Minute, 2*d.Config.Gateway.AuthRateLimitWindow)
	}

	return nil
}

// Close releases all resources in reverse dependency order. The audit
// service drains its buffer before the database connection goes away.
func (d *Dependencies) Close() error {
	if d.cleanupCancel != nil {
		d.cleanupCancel()
	}

	if d.Auditor != nil {
		if err := d.Auditor.Stop(10 * time.Second); err != nil {
			d.Logger.Warn("audit service did not drain cleanly", zap.Error(err))
		}
	}

	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}

	if d.RepoFactory != nil {
		return d.RepoFactory.Close()
	}
	return nil
}

func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Roles = repos.Roles
	d.APIKeys = repos.APIKeys
	d.SecurityEvents = repos.SecurityEvents
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initIdentity(cfg *config.Config) {
	d.Provider = identity.NewJWKSProvider(identity.JWKSProviderConfig{
		Issuer:       cfg.Provider.Issuer,
		Audience:     cfg.Provider.Audience,
		AdminBaseURL: cfg.Provider.AdminBaseURL,
		AdminAPIKey:  cfg.Provider.AdminAPIKey,
		CacheTTL:     cfg.Provider.CacheTTL,
		HTTPTimeout:  cfg.Provider.HTTPTimeout,
	})
	d.Verifier = identity.NewVerifier(d.Provider, d.Logger)

	d.Logger.Info("identity provider initialized",
		zap.String("issuer", cfg.Provider.Issuer))
}

func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Sync = idsync.NewService(d.Users, d.TxManager, d.Logger)
	d.Entitlements = entitlement.NewService(d.Roles, 1024, 30*time.Second, d.Logger)
	d.Keys = apikey.NewService(d.APIKeys, d.Logger)

	d.Auditor = audit.NewService(d.SecurityEvents, audit.AlerterFunc(func(reason string, count int) {
		d.Logger.Error("security event pipeline degraded",
			zap.String("reason", reason), zap.Int("count", count))
	}), d.Logger, audit.Config{Metrics: d.Metrics})

	d.Accounts = account.NewService(d.Users, d.Provider, d.Auditor, d.Logger)

	if cfg.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.redis = client
		d.Limiter = ratelimit.NewRedisLimiter(client, "gw:rl")
		d.Logger.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
	} else {
		d.memoryLimiter = ratelimit.NewMemoryLimiter()
		d.Limiter = d.memoryLimiter
		d.Logger.Info("using in-process rate limiter")
	}

	return nil
}

func (d *Dependencies) initMetrics() error {
	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	d.Metrics = m
	return nil
}

func (d *Dependencies) initGateway(cfg *config.Config) error {
	d.Runtime = config.NewRuntime(envSource(), cfg.Gateway.RuntimeTTL, d.Logger)

	d.Pipeline = gateway.NewPipeline(
		d.Verifier,
		d.Sync,
		d.Entitlements,
		d.Limiter,
		d.Keys,
		d.Auditor,
		d.Runtime,
		cfg.Gateway,
		d.Metrics,
		d.Logger,
	)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Pipeline, d.Logger)

	return nil
}

// envSource serves runtime settings from the environment: the key
// "gateway.rate_limit.auth.max" maps to GATEWAY_RATE_LIMIT_AUTH_MAX.
// Operators can flip settings between deploys; the Runtime TTL bounds how
// long a change takes to become visible.
func envSource() config.Source {
	return config.SourceFunc(func(_ context.Context, key string) (string, bool, error) {
		name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		v, ok := os.LookupEnv(name)
		return v, ok, nil
	})
}
