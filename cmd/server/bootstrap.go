package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/api"
	"github.com/charlesng35/lockgate/internal/app"
	"github.com/charlesng35/lockgate/internal/app/maintenance"
	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/cache"
	"github.com/charlesng35/lockgate/internal/database"
	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/internal/middleware"
	"github.com/charlesng35/lockgate/internal/monitoring/checks"
	"github.com/charlesng35/lockgate/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Services  *api.Services
	Sessions  *iauth.SessionService
	Publisher events.Publisher
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Publisher = newPublisher(cfg.MQTT, log)

	stack.Services, err = api.NewServices(stack.DB, cfg, stack.Publisher)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	var dbStore *cache.DatabaseStore
	switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store)) {
	case "database":
		dbStore = cache.NewDatabaseStore(stack.DB)
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	default:
		stack.RateStore = middleware.NewMemoryRateStore()
	}

	maint := cfg.Maintenance
	opts := []maintenance.Option{
		maintenance.WithPinSweep(stack.Services.Pins, maint.PinSweep),
		maintenance.WithChallengePurge(stack.Services.TwoFactor, maint.ChallengePurge),
		maintenance.WithSessionCleanup(stack.Sessions, maint.SessionCleanup),
		maintenance.WithAccessLogRetention(stack.Services.AccessLogs, maint.AccessLogRetentionDays, maint.AccessLogRetention),
	}
	if dbStore != nil {
		opts = append(opts, maintenance.WithCachePurge(dbStore, maint.CachePurge))
	}
	stack.Cleaner = maintenance.NewCleaner(opts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}
	stack.Services.Health.RegisterReadiness(checks.Maintenance(stack.Cleaner, 0, nil))

	stack.Router, err = api.NewRouter(cfg, jwtSvc, stack.Sessions, stack.Services, stack.RateStore)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if mem, ok := s.RateStore.(*middleware.MemoryRateStore); ok && mem != nil {
		mem.Close()
	}

	if s.Services != nil && s.Services.Realtime != nil {
		_ = s.Services.Realtime.Close()
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("event publisher shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// newPublisher connects to MQTT when enabled. An unreachable broker downgrades
// to no events rather than blocking start-up.
func newPublisher(cfg app.MQTTConfig, log *zap.Logger) events.Publisher {
	if !cfg.Enabled {
		return events.NopPublisher{}
	}

	publisher, err := events.NewMQTTPublisher(events.MQTTConfig{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		QoS:         cfg.QoS,
		TopicPrefix: cfg.TopicPrefix,
	})
	if err != nil {
		log.Warn("mqtt unavailable; access events disabled", zap.String("broker", cfg.Broker), zap.Error(err))
		return events.NopPublisher{}
	}

	log.Info("mqtt connected", zap.String("broker", cfg.Broker))
	return publisher
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var vendor app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		vendor = cfg.Database.Postgres
	case "mysql":
		vendor = cfg.Database.MySQL
	default:
		// unsupported drivers surface from database.Open
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(vendor.Host)
	dbCfg.Port = vendor.Port
	dbCfg.Name = strings.TrimSpace(vendor.Database)
	dbCfg.User = strings.TrimSpace(vendor.Username)
	dbCfg.Password = strings.TrimSpace(vendor.Password)
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
