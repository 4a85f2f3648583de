package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/noah-isme/agromarket-api/api/swagger"
	"github.com/noah-isme/agromarket-api/internal/handler"
	internalmiddleware "github.com/noah-isme/agromarket-api/internal/middleware"
	"github.com/noah-isme/agromarket-api/internal/repository"
	"github.com/noah-isme/agromarket-api/internal/service"
	"github.com/noah-isme/agromarket-api/pkg/cache"
	"github.com/noah-isme/agromarket-api/pkg/config"
	"github.com/noah-isme/agromarket-api/pkg/database"
	"github.com/noah-isme/agromarket-api/pkg/jobs"
	"github.com/noah-isme/agromarket-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/agromarket-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/agromarket-api/pkg/middleware/requestid"
	"github.com/noah-isme/agromarket-api/pkg/storage"
)

// @title AgroMarket API
// @version 1.0.0
// @description Agricultural marketplace: users, product ledger, cooperatives and forums
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Migrations.AutoApply {
		if err := database.RunMigrations(db.DB, cfg.Migrations.Path, logr); err != nil {
			return err
		}
	}

	metrics := service.NewMetricsService()

	var (
		redisClient *redis.Client
		cacheRepo   service.CacheRepository
	)
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	validate := validator.New()
	hasher := service.NewBcryptHasher(bcrypt.DefaultCost)
	tx := repository.NewTxManager(db)
	userRepo := repository.NewUserRepository(db)

	roles := service.NewRoleService(repository.NewRoleRepository(db), tx, logr)
	if err := roles.Seed(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}

	users := service.NewUserService(userRepo, roles, hasher, validate, logr, service.DirectoryConfig{
		BootstrapAdminPhones: cfg.Market.BootstrapAdminPhones,
		StartingWallet:       cfg.Market.StartingWallet,
	})
	auth := service.NewAuthService(userRepo, users, hasher, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      true,
	})

	store, images, err := newImageStore(ctx, cfg)
	if err != nil {
		return err
	}
	imageSvc := service.NewImageService(store, service.ImageConfig{
		MaxFileSizeBytes: cfg.Images.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Images.AllowedMIMEs,
	}, logr)
	cleanup := jobs.NewQueue("image-cleanup", imageSvc.HandleCleanup, jobs.Config{Workers: 2, Logger: logr})
	cleanup.Start(ctx)
	defer cleanup.Stop()
	imageSvc.UseCleanupQueue(cleanup)

	products := service.NewProductService(repository.NewProductRepository(db), tx, userRepo, imageSvc, cacheSvc, metrics, validate, logr,
		service.ProductConfig{UniqueNames: cfg.Market.UniqueProductNames})
	cooperatives := service.NewCooperativeService(repository.NewCooperativeRepository(db), userRepo, cacheSvc, validate, logr)
	forums := service.NewForumService(repository.NewForumRepository(db), tx, validate, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(auth, users),
		Users:        handler.NewUserHandler(users),
		Products:     handler.NewProductHandler(products, users, imageSvc),
		Cooperatives: handler.NewCooperativeHandler(cooperatives),
		Forums:       handler.NewForumHandler(forums, users),
		Metrics:      metricsHandler,
	}
	if images != nil {
		handlers.Images = handler.NewImageHandler(images)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handlers, auth, users)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newImageStore returns the configured image backend and, for the local
// backend, the store that serves signed downloads.
func newImageStore(ctx context.Context, cfg *config.Config) (service.ImageStore, *storage.LocalStorage, error) {
	switch cfg.Images.Backend {
	case config.ImageBackendS3:
		s3Store, err := storage.NewS3Storage(ctx, cfg.Images.S3Region, cfg.Images.S3Bucket, cfg.Images.CDNBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init s3 image store: %w", err)
		}
		return s3Store, nil, nil
	case config.ImageBackendLocal, "":
		signer := storage.NewSignedURLSigner(cfg.Images.SignedURLSecret, cfg.Images.SignedURLTTL)
		baseURL := strings.TrimRight(cfg.APIPrefix, "/") + "/images"
		local, err := storage.NewLocalStorage(cfg.Images.LocalDir, baseURL, signer)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown image backend %q", cfg.Images.Backend)
	}
}
