package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nestmatch/nestmatch-backend/internal/config"
	"github.com/nestmatch/nestmatch-backend/internal/handler"
	"github.com/nestmatch/nestmatch-backend/internal/middleware"
	"github.com/nestmatch/nestmatch-backend/internal/migration"
	"github.com/nestmatch/nestmatch-backend/internal/pipeline"
	"github.com/nestmatch/nestmatch-backend/internal/repository"
	"github.com/nestmatch/nestmatch-backend/internal/routes"
	"github.com/nestmatch/nestmatch-backend/internal/service"
	"github.com/nestmatch/nestmatch-backend/internal/ws"
	pkgcache "github.com/nestmatch/nestmatch-backend/pkg/cache"
	pkgjwt "github.com/nestmatch/nestmatch-backend/pkg/jwt"
	pkglogger "github.com/nestmatch/nestmatch-backend/pkg/logger"
	pkgredis "github.com/nestmatch/nestmatch-backend/pkg/redis"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.Init(env)
	zlog := pkglogger.GetLogger()
	zlog.Info().Str("env", env).Strs("dotenv", dotenvFiles).Msg("starting")

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}

	// MySQL
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	zlog.Info().Msg("connected to MySQL")

	// Redis is optional: without it the projection cache and the
	// cross-instance fanout are skipped, the durable store still works
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		zlog.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		redisClient = nil
	} else {
		zlog.Info().Msg("connected to Redis")
	}
	cacheSvc := pkgcache.NewService(redisClient)

	// Realtime layer
	hub := ws.NewHub(redisClient)
	go hub.Run()

	bridge := ws.NewBridge(cfg.Messaging.DebounceWindow(), func(userID string) {
		// Coalesced reconciliation: drop the stale projection, then tell
		// the user's sessions to refetch
		if err := cacheSvc.InvalidateConversations(context.Background(), userID); err != nil {
			zlog.Warn().Err(err).Str("user_id", userID).Msg("refresh invalidation failed")
		}
		hub.SendToUser(userID, &ws.Event{Type: ws.EventConversationChanged, Payload: nil})
	})

	// Repositories
	memberRepo := repository.NewMemberRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	quotaRepo := repository.NewQuotaRepository(db)

	typing := ws.NewTypingRegistry(cfg.Messaging.TypingExpiry(), func(conversationID string, userIDs []string) {
		conv, err := convRepo.FindByID(conversationID)
		if err != nil || conv == nil {
			return
		}
		event := &ws.Event{
			Type: ws.EventTyping,
			Payload: map[string]interface{}{
				"conversation_id": conversationID,
				"user_ids":        userIDs,
			},
		}
		hub.SendToUser(conv.SeekerID, event)
		hub.SendToUser(conv.ListerID, event)
	})

	// Services
	notifier := ws.NewNotifier(hub, bridge)
	outbox := pipeline.NewOutbox()
	quotaSvc := service.NewQuotaService(quotaRepo, cacheSvc, cfg.Messaging.MonthlyMessageCap, cfg.Messaging.FreeStartCredits)
	msgSvc := service.NewMessageService(msgRepo, convRepo, quotaSvc, outbox, cacheSvc, notifier)
	convSvc := service.NewConversationService(convRepo, memberRepo, msgRepo, quotaSvc, msgSvc, cacheSvc, notifier)
	memberSvc := service.NewMemberService(memberRepo, quotaSvc, cacheSvc)

	// Handlers
	jwtManager := pkgjwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTL())
	conversationHandler := handler.NewConversationHandler(convSvc)
	messageHandler := handler.NewMessageHandler(msgSvc)
	quotaHandler := handler.NewQuotaHandler(quotaSvc)
	memberHandler := handler.NewMemberHandler(memberSvc)
	wsHandler := handler.NewWSHandler(hub, bridge, typing, cfg.CORS.AllowedOrigins)

	// Router
	if env != "local" && env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.Setup(router, conversationHandler, messageHandler, quotaHandler, memberHandler, wsHandler, jwtManager, cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting, drain requests, then tear down
	// timers and the hub so no refresh fires into a closed system
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("forced shutdown")
	}

	bridge.Stop()
	typing.Shutdown()
	hub.Stop()
	zlog.Info().Msg("stopped")
}

// initDB opens the MySQL connection with pool settings applied
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
