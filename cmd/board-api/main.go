package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/api"
	"github.com/thribhuvan003/task-flow-main/internal/assistant"
	"github.com/thribhuvan003/task-flow-main/internal/config"
	"github.com/thribhuvan003/task-flow-main/internal/gateway"
	"github.com/thribhuvan003/task-flow-main/internal/storage"
	"github.com/thribhuvan003/task-flow-main/internal/storage/postgres"
	"github.com/thribhuvan003/task-flow-main/internal/subscription"
)

type backend interface {
	gateway.Backend
	api.ProfileStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base, closeBase, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeBase()

	var (
		rc         *redis.Client
		listener   gateway.Listener
		publishers []gateway.Publisher
	)
	if cfg.Redis != nil {
		rc = redis.NewClient(cfg.Redis)
		defer rc.Close()
		ch := subscription.NewChannel(rc, cfg.ChangesChannel, logger.WithField("component", "subscription"))
		listener = ch
		publishers = append(publishers, ch)
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set, sessions will not see each other's changes")
	}
	if cfg.ChangeFeedQueue != "" && cfg.ConnectionString != "" {
		feed, err := storage.NewChangeFeed(cfg.ConnectionString, cfg.ChangeFeedQueue)
		if err != nil {
			log.Fatalf("change feed: %v", err)
		}
		publishers = append(publishers, feed)
	}
	cached := storage.NewCache(base, rc, cfg.CacheTTL)

	var auth api.Authenticator
	if cfg.AuthTestMode {
		auth = api.NewTestAuth([]byte(cfg.TestJWTSecret))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.JWKSCacheTTL)
	}

	var ai api.Assistant
	if cfg.AIGatewayURL != "" {
		ai = assistant.NewClient(cfg.AIGatewayURL, cfg.AIGatewayKey, cfg.AIGatewayModel)
	}

	sessions := api.NewManager(api.SessionConfig{
		Backend:    cached,
		Profiles:   cached,
		Listener:   listener,
		Publishers: publishers,
		Debounce:   cfg.ReloadDebounce,
		IdleTTL:    cfg.SessionIdleTTL,
		Location:   time.Local,
		Logger:     logger,
	})
	go sessions.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderContentEncoding, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("taskboard"))
	e.Use(api.GzipRequestMiddleware())
	e.GET("/metrics", echoprometheus.NewHandler())
	api.Register(e, sessions, auth, ai, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	sessions.Close()
}

func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	if cfg.StorageBackend == config.BackendPostgres {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.New(db), db.Close, nil
	}
	tables, err := storage.NewTables(cfg.ConnectionString, storage.TableNames{
		Tasks:    cfg.TasksTable,
		Projects: cfg.ProjectsTable,
		Profiles: cfg.ProfilesTable,
		Members:  cfg.MembersTable,
	})
	if err != nil {
		return nil, nil, err
	}
	return tables, func() {}, nil
}
