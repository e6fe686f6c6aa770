// Микросервис авторизации: сессии с токеном, Postgres + Redis, скользящее продление.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/campaign/internal/config"
	"github.com/campaign/internal/handler"
	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
	"github.com/campaign/internal/service"
	"github.com/campaign/internal/session"
	"github.com/campaign/internal/startup"
	"github.com/campaign/internal/storage"
	"github.com/campaign/internal/storage/memory"
	"github.com/campaign/internal/transport"
)

func main() {
	logger.SetPrefix("auth")
	dev := flag.Bool("dev", false, "embedded PostgreSQL and in-memory cache (no external DB or Redis required)")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	logger.Info("starting auth service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.SetFile(cfg.LogFile)

	if *dev {
		ep := startup.DevPostgres()
		db, err := ep.Start()
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
		cfg.Database.URL = ep.URL()
	}

	if err := startup.Migrate(cfg.DatabaseURL(), "up"); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *migrateOnly {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	pool, err := startup.ConnectDBWithRetry(ctx, poolCfg, 60*time.Second, "auth: ")
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	membershipRepo := repository.NewMembershipRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	var cache storage.Cache
	if *dev {
		logger.Info("auth -dev: in-memory session cache (Redis не нужен)")
		cache = memory.New()
		if err := seedDevUser(ctx, pool, userRepo, membershipRepo); err != nil {
			logger.Errorf("dev seed: %v", err)
		}
	} else {
		redisClient, err := startup.ConnectRedisWithRetry(ctx, cfg.Redis.URL, 60*time.Second, "auth: ")
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		cache = redisClient
	}
	defer cache.Close()

	mgr := session.NewManager(sessionRepo, cache, session.Options{
		Lifetime:         cfg.Session.Lifetime,
		RenewalThreshold: cfg.Session.RenewalThreshold,
	})
	extender := session.NewExtender(mgr, cfg.Session.ExtenderWorkers, cfg.Session.ExtenderQueue)
	// Фоновые продления не должны обрываться вместе с сигналом: Stop дожидается очереди.
	extender.Start(context.Background())
	resolver := session.NewResolver(mgr, extender)
	janitor := session.NewJanitor(mgr, cfg.Session.CleanupInterval)

	transports := transport.NewSet(
		transport.NewCookie(transport.CookieOptions{
			Domain: cfg.Cookie.Domain,
			MaxAge: cfg.Session.Lifetime,
			Secure: cfg.Cookie.Secure,
		}),
		transport.NewHeader(),
	)
	authSvc := service.NewAuthService(userRepo, membershipRepo, mgr, cfg.BcryptCost)
	router := handler.NewRouter(
		handler.NewAuthHandler(authSvc, resolver, transports),
		handler.NewConfigHandler(cfg),
		resolver,
		transports,
		handler.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins(),
			TrustProxy:     cfg.TrustProxy,
			LoginRateLimit: cfg.LoginRateLimit,
			InternalSecret: cfg.InternalSecret,
		},
	)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		janitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Infof("auth server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("auth server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down auth server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("auth server shutdown: %v", err)
	}
	wg.Wait()
	extender.Stop()
	logger.Info("auth server stopped")
}

const (
	devEmail    = "dev@example.com"
	devPassword = "devpassword1"
)

// seedDevUser создаёт пользователя и организацию для локальной разработки (только -dev).
func seedDevUser(ctx context.Context, pool *pgxpool.Pool, users *repository.UserRepository, memberships *repository.MembershipRepository) error {
	if _, err := users.GetByEmail(ctx, devEmail); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u := &model.User{Email: devEmail, FirstName: "Dev", LastName: "User", PasswordHash: string(hash), IsStaff: true}
	if err := users.Create(ctx, u); err != nil {
		return err
	}
	var orgID int64
	if err := pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ('Dev Campaign') RETURNING id`).Scan(&orgID); err != nil {
		return err
	}
	m := &model.Membership{OrganizationID: orgID, UserID: u.ID, Role: "admin"}
	if err := memberships.Create(ctx, m); err != nil {
		return err
	}
	logger.Infof("auth -dev: создан пользователь %s / %s (membership_id=%d)", devEmail, devPassword, m.ID)
	return nil
}
