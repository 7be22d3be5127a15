package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"receiptd/internal/config"
	"receiptd/internal/domain"
	"receiptd/internal/infra/crypto"
	"receiptd/internal/infra/db"
	"receiptd/internal/infra/keyset"
	"receiptd/internal/infra/metrics"
	"receiptd/internal/infra/ratelimit"
	"receiptd/internal/logger"
	"receiptd/internal/usecase"
)

const (
	cacheModeMemory = "memory"
	cacheModeRedis  = "redis"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine

	verifyUC *usecase.VerifyReceipt
	keySets  *usecase.KeySetSource
	crypto   *crypto.Service

	registryEnabled bool
	cacheMode       string
	adminAPIKey     string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Verify          *usecase.VerifyReceipt
	KeySets         *usecase.KeySetSource
	Crypto          *crypto.Service
	RateLimiter     domain.RateLimiter
	RegistryEnabled bool
	CacheMode       string
}

// NewServer wires the service from configuration: Redis-backed cache and
// rate limiting when redis_addr is set, the Postgres registry when store has
// a database.
func NewServer(cfg config.Config, store *db.Store) *Server {
	cryptoSvc := crypto.NewService()

	var cache usecase.KeySetCache
	cacheMode := cacheModeMemory
	if cfg.RedisAddr != "" {
		redisStore, err := keyset.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeySetTTL)
		if err != nil {
			logger.Warn("redis key set cache unavailable; using memory", "error", err)
		} else {
			cache = redisStore
			cacheMode = cacheModeRedis
		}
	}
	if cache == nil {
		cache = keyset.NewMemoryStore(keyset.MemoryStoreConfig{TTL: cfg.KeySetTTL})
	}

	source := &usecase.KeySetSource{
		Cache: cache,
		Fetcher: keyset.NewHTTPFetcher(keyset.FetcherConfig{
			Timeout:      cfg.KeySetFetchTimeout,
			Attempts:     cfg.KeySetFetchAttempts,
			MaxBodyBytes: cfg.KeySetMaxBytes,
		}),
		Metrics: metrics.KeySet{},
	}
	if store.Enabled() {
		source.Registry = db.NewKeySetRepository(store.DB)
	}

	return NewServerWithDeps(cfg, ServerDeps{
		Verify:          usecase.NewVerifyReceipt(cryptoSvc),
		KeySets:         source,
		Crypto:          cryptoSvc,
		RegistryEnabled: store.Enabled(),
		CacheMode:       cacheMode,
	})
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:             cfg,
		r:               r,
		verifyUC:        deps.Verify,
		keySets:         deps.KeySets,
		crypto:          deps.Crypto,
		registryEnabled: deps.RegistryEnabled,
		cacheMode:       deps.CacheMode,
		adminAPIKey:     cfg.AdminAPIKey,
	}
	if s.crypto == nil {
		s.crypto = crypto.NewService()
	}
	if s.verifyUC == nil {
		s.verifyUC = usecase.NewVerifyReceipt(s.crypto)
	}
	if s.keySets == nil {
		s.keySets = &usecase.KeySetSource{}
	}
	if s.cacheMode == "" {
		s.cacheMode = cacheModeMemory
	}
	r.Use(s.requestMiddleware())

	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimiter = override
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow
	if s.rateLimitWindow <= 0 {
		s.rateLimitWindow = time.Minute
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		registry := "no-db"
		if s.registryEnabled {
			registry = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "registry": registry, "cache": s.cacheMode})
	})
	s.r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.r.Group("/v1")
	{
		v1.GET("/key-sets", s.handleListKeySets)
		v1.GET("/key-sets/:name", s.handleGetKeySet)
		v1.PUT("/key-sets/:name", s.handlePutKeySet)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
