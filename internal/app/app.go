package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	internalauth "github.com/knowva/knowva-server/internal/auth"
	"github.com/knowva/knowva-server/internal/config"
	"github.com/knowva/knowva-server/internal/db"
	authapi "github.com/knowva/knowva-server/internal/http/api/auth"
	"github.com/knowva/knowva-server/internal/ratelimit"
	"github.com/knowva/knowva-server/internal/security"
)

// shutdownTimeout bounds how long in-flight requests may run after the server
// is asked to stop.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	conn, err := openDatabase(configPath)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the auth API server and blocks until the context is
// cancelled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	conn, err := openDatabase(configPath)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	issuer := security.NewTokenIssuer(config.LoadJWTConfig(configPath))
	svc := internalauth.NewService(conn, issuer)

	rlCfg := config.LoadRateLimitConfig(configPath)
	var limiter ratelimit.Limiter
	if rlCfg.PerMinute > 0 {
		limiter = ratelimit.NewManager(rlCfg.RedisAddr, "knowva:rl", time.Minute)
		if rlCfg.RedisAddr != "" {
			log.Infof("rate limiter: redis backend at %s", rlCfg.RedisAddr)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	authapi.RegisterAuthRoutes(engine, conn, svc, issuer, limiter, rlCfg.PerMinute)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Infof("listening on :%d", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", errServe)
	}
}

// openDatabase resolves the DSN and connects, warning when no database is
// configured and the in-memory store takes over.
func openDatabase(configPath string) (*gorm.DB, error) {
	dsn := config.LoadDatabaseDSN(configPath)
	if dsn == "" {
		log.Warn("no database configured, using in-memory sqlite store")
	}
	return db.Open(dsn)
}
