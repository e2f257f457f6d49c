package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gamelog/internal/ratelimit"
	"gamelog/internal/usertoken"
	"gamelog/internal/util"
	"gamelog/pkg/ai"
	"gamelog/pkg/authclient"
	"gamelog/pkg/rewrite"
	"gamelog/pkg/storage"
	"gamelog/services/collection/internal/app"
	"gamelog/services/collection/internal/config"
	"gamelog/services/collection/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jwtLeeway, _ := config.ParseDuration(cfg.JWTLeeway, 30*time.Second)
	linkExpiry, _ := config.ParseDuration(cfg.ExportLinkExpiry, 15*time.Minute)

	tokenVerifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	generator, err := ai.NewGenerator(ctx, ai.Config{
		Provider: cfg.GenerationProvider,
		Model:    cfg.GenerationModel,
		APIKey:   cfg.GenerationAPIKey,
		BaseURL:  cfg.GenerationBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init text generator: %v", err)
	}
	if generator == nil {
		slog.Warn("no generation provider configured; review rewrite returns drafts unchanged")
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:      cfg.DatabaseURL,
		Objects:          objects,
		Rewriter:         rewrite.New(generator).WithLogger(logger),
		ExportLinkExpiry: linkExpiry,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()
	var rewriteLimiter *ratelimit.FixedWindowLimiter
	if cfg.RewriteRateLimitPerMinute > 0 {
		rewriteLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "gamelog:ratelimit:collection", cfg.RewriteRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Auth:           authclient.NewClient(cfg.AuthServiceURL),
		TokenVerifier:  tokenVerifier,
		RewriteLimiter: rewriteLimiter,
		CORSOrigins:    cfg.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("collection server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
