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
	"gamelog/internal/util"
	"gamelog/services/auth/internal/app"
	"gamelog/services/auth/internal/config"
	"gamelog/services/auth/internal/security"
	"gamelog/services/auth/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, _ := config.ParseSessionTTL(cfg.SessionTTL)
	refreshTTL, _ := config.ParseRefreshTTL(cfg.RefreshTTL)
	jwtLeeway, _ := config.ParseJWTLeeway(cfg.JWTLeeway)
	verifyKeys, _ := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	cancel()

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		Redis:               redisClient,
		SessionTTL:          sessionTTL,
		RefreshTTL:          refreshTTL,
		JWTPrivateKeyPath:   cfg.JWTPrivateKeyPath,
		JWTPublicKeyPath:    cfg.JWTPublicKeyPath,
		JWTKeyID:            cfg.JWTKeyID,
		JWTVerifyPublicKeys: verifyKeys,
		JWTIssuer:           cfg.JWTIssuer,
		JWTAudience:         cfg.JWTAudience,
		JWTLeeway:           jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("invalid trustedProxies: %v", err)
	}

	limiter := func(name string, perMinute int) *ratelimit.FixedWindowLimiter {
		if perMinute <= 0 {
			return nil
		}
		l, err := ratelimit.NewFixedWindowLimiter(redisClient, "gamelog:ratelimit:auth:"+name, perMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init %s rate limiter: %v", name, err)
		}
		return l
	}

	var alerter *security.AuditAlerter
	if cfg.SecurityAlerts {
		alerter = security.NewAuditAlerter(redisClient, "gamelog:auth:alerts")
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		SignupLimiter:  limiter("signup", cfg.SignupRateLimitPerMinute),
		LoginLimiter:   limiter("login", cfg.LoginRateLimitPerMinute),
		RefreshLimiter: limiter("refresh", cfg.RefreshRateLimitPerMinute),
		Alerter:        alerter,
		TrustedProxies: trusted,
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

	slog.Info("auth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
