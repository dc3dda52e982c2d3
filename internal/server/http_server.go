// internal/server/http_server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scholara/account-service/internal/config"
	"github.com/scholara/account-service/internal/handler"
	"github.com/scholara/account-service/internal/metrics"
	"github.com/scholara/account-service/internal/middleware"
	"github.com/scholara/account-service/internal/notifier"
	"github.com/scholara/account-service/internal/repository"
	"github.com/scholara/account-service/internal/service"
	"github.com/scholara/account-service/internal/token"

	_ "github.com/lib/pq"
)

type AppServer struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	rdb    *redis.Client
	HTTP   *http.Server
}

func NewAppServer(cfg *config.Config, logger *zap.Logger) (*AppServer, error) {
	sugar := logger.Sugar()

	// PostgreSQL (via sqlx)
	pg := cfg.Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		sugar.Errorf("failed to connect to postgres: %v", err)
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	// Redis is optional; without it the resend cooldown is disabled.
	var rdb *redis.Client
	cooldown := repository.NewNoopCooldownStore()
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sugar.Errorf("failed to ping redis: %v", err)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cooldown = repository.NewCooldownStore(rdb)
	}

	// Outbound delivery: SMTP when configured, log-only otherwise.
	var notif notifier.Notifier
	if cfg.SMTP.Host != "" {
		notif = notifier.NewSMTPNotifier(
			cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From,
		)
	} else {
		sugar.Warn("no SMTP host configured, verification codes go to the log")
		notif = notifier.NewLogNotifier(sugar)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	// Repository → Service → Handler
	userRepo := repository.NewUserRepository(db)
	tokens := token.NewIssuer([]byte(cfg.JWT.SigningKey))
	authSvc := service.NewAuthService(userRepo, cooldown, notif, tokens, m, sugar, service.Options{
		CodeTTL:        cfg.OTP.CodeTTL,
		ResendCooldown: cfg.OTP.ResendCooldown,
		TokenExpiry:    cfg.JWT.TokenExpiry,
		LoginExpiry:    cfg.JWT.LoginExpiry,
		AdminSetupKey:  cfg.AdminSetup.SecretKey,
	})
	authHandler := handler.NewAuthHandler(authSvc, sugar)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogging(sugar))
	authHandler.Register(r, middleware.RequireAuth(sugar, tokens))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sugar.Infof("AppServer initialized successfully")
	return &AppServer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		HTTP:   srv,
	}, nil
}

func (a *AppServer) Run() error {
	sugar := a.logger.Sugar()
	sugar.Infof("HTTP server listening on %s", a.HTTP.Addr)
	if err := a.HTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (a *AppServer) GracefulStop() {
	sugar := a.logger.Sugar()
	sugar.Info("Shutting down HTTP server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTP.Shutdown(ctx); err != nil {
		sugar.Warnf("shutdown error: %v", err)
	}
	a.db.Close()
	if a.rdb != nil {
		a.rdb.Close()
	}
	sugar.Info("Resources closed, server stopped")
}
