package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/inmobium/crm-messaging/internal/config"
	"github.com/inmobium/crm-messaging/internal/dedup"
	"github.com/inmobium/crm-messaging/internal/handlers"
	"github.com/inmobium/crm-messaging/internal/meta"
	"github.com/inmobium/crm-messaging/internal/repository"
	"github.com/inmobium/crm-messaging/internal/services"
	"github.com/inmobium/crm-messaging/internal/webhook"
	xhttp "github.com/inmobium/crm-messaging/pkg/http"
	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/inmobium/crm-messaging/pkg/pg"
	"github.com/inmobium/crm-messaging/pkg/prom"
	"github.com/inmobium/crm-messaging/pkg/redis"
)

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	location, err := time.LoadLocation(config.Get().AppTimezone)
	if err != nil {
		logger.Error("invalid timezone", "tz", config.Get().AppTimezone, "error", err)
		return
	}

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Server.Logger = logger.GetLogger()
	s.Use(xhttp.TimeoutMiddleware(time.Second * 30))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	if argContains("--migrate") {
		if err := pg.Migrate(writeConf, config.Get().MigrationsDir); err != nil {
			logger.Error("migration failed", "error", err)
			return
		}
		logger.Info("migrations applied")
	}

	pgDebug := config.Get().AppEnv == "dev"
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	var redisAdap redis.RedisAdapter
	if config.Get().RedisEnable {
		redisAdap, err = redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{config.Get().RedisAddr},
			ClientName: "default",
			DB:         config.Get().RedisDatabase,
			Username:   config.Get().RedisUsername,
			Password:   config.Get().RedisPassword,
		})
		if err != nil {
			logger.Error("failed connecting to redis", "error", err)
			return
		}
	}
	dedupCache := dedup.New(redisAdap, dedup.DefaultConfig())

	if err := prom.Create(hostname(), config.Get().AppEnv, config.Get().PromNamespace); err != nil {
		logger.Error("failed registering metrics", "error", err)
	}

	// repositories
	userRepo := repository.NewUserRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	contactRepo := repository.NewContactRepository(db)
	operationTypeRepo := repository.NewOperationTypeRepository(db)
	propertyRepo := repository.NewPropertyRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// provider client
	metaClient := meta.NewHTTPClient(meta.ClientConfig{
		BaseURL:     config.Get().MetaGraphBaseURL,
		APIVersion:  config.Get().MetaGraphVersion,
		AccessToken: config.Get().MetaAccessToken,
		Timeout:     config.Get().MetaSendTimeout,
	})

	// services
	channelResolver := services.NewChannelResolver(settingRepo, channelRepo)
	contactResolver := services.NewContactResolver(settingRepo, contactRepo, userRepo)
	inferer := services.NewOperationInferer(propertyRepo, operationTypeRepo)
	opportunityResolver := services.NewOpportunityResolver(opportunityRepo, inferer)
	replyService := services.NewReplyService(messageRepo, contactRepo, channelRepo, settingRepo, opportunityResolver, metaClient)
	healthService := services.NewHealthService(db)

	processor := webhook.NewProcessor(
		settingRepo, eventRepo, messageRepo,
		channelResolver, contactResolver, opportunityResolver,
		dedupCache, location,
	)

	// handlers
	webhookHandler := handlers.NewWebhookHandler(processor)
	messageHandler := handlers.NewMessageHandler(replyService, messageRepo)
	healthHandler := handlers.NewHealthHandler(healthService)

	handlers.RegisterWebhookRoutes(s.Router, webhookHandler)
	g := s.Router.Group("/api/v1")
	handlers.RegisterMessageRoutes(g, messageHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)
	s.Router.GET("/metrics", prom.Handler())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(config.Get().HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

func argContains(flag string) bool {
	for _, v := range os.Args {
		if v == flag {
			return true
		}
	}
	return false
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
