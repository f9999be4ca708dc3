package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-core/internal/auth"
	"chat-core/internal/config"
	"chat-core/internal/contacts"
	"chat-core/internal/db"
	"chat-core/internal/groups"
	"chat-core/internal/grpcserver"
	"chat-core/internal/handlers"
	"chat-core/internal/hub"
	"chat-core/internal/messaging"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
	"chat-core/internal/tracing"
	"chat-core/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("amqp publisher mode=%s %s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	auditor := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	requestRepo := repositories.NewConnectionRequestRepo(database)

	registry := hub.NewHub()

	groupSvc := groups.NewService(groupRepo, registry)
	contactSvc := contacts.NewService(requestRepo, userRepo, registry, auditor, cfg.RequireAdminApproval)
	tracker := presence.NewTracker(userRepo, contactSvc, registry)
	registry.OnTransition(tracker.HandleTransition)

	messageRouter := messaging.NewRouter(messageRepo, groupSvc, registry)
	unread := messaging.NewUnread(messageRepo, groupSvc, registry)
	history := messaging.NewHistory(messageRepo, groupSvc, cfg.HistoryLimit)

	if cfg.AMQPURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPUserQueue, rabbitmq.RouteUserCreated, rabbitmq.RouteUserUpdated)
		if err != nil {
			log.Printf("amqp consumer disabled: %v", err)
		} else {
			defer consumer.Close()
			userSync := presence.NewUserSync(userRepo, tracker, registry)
			go func() {
				if err := consumer.Run(ctx, userSync.Handle); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("amqp consumer stopped: %v", err)
				}
			}()
		}
	}

	var tokens middleware.TokenParser
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)
	}
	authMiddleware := middleware.AuthMiddleware(tokens, cfg.AuthRequired)

	dispatcher := ws.NewDispatcher(registry, ws.Services{
		Messages: messageRouter,
		Reads:    unread,
		Groups:   groupSvc,
		Requests: contactSvc,
		Presence: tracker,
		Users:    userRepo,
	})
	socket := ws.NewHandler(registry, dispatcher, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		PongWait:       cfg.PongWait,
	})

	chatHandler := handlers.NewChatHandler(contactSvc, userRepo, groupSvc, unread, history, handlers.UploadOptions{
		Dir:           cfg.UploadDir,
		MaxBytes:      cfg.UploadMaxBytes,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	adminHandler := handlers.NewAdminHandler(contactSvc, auditor)

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.ServiceName))
	engine.Use(observability.HTTPMetricsMiddleware())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORS(cfg.AllowedOrigins))

	engine.GET("/healthz", handlers.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.Group("/uploads", middleware.NoSniff()).Static("/", cfg.UploadDir)

	engine.GET("/socket", authMiddleware, socket.Handle)
	engine.GET("/ws", authMiddleware, socket.Handle)

	api := engine.Group("/api", authMiddleware, middleware.RequireUser())
	api.POST("/chat/upload", chatHandler.Upload)
	api.GET("/chat/preload", chatHandler.Preload)
	api.GET("/chat/history", chatHandler.History)
	api.GET("/chat/contacts", chatHandler.Contacts)
	api.GET("/admin/contacts", middleware.RequireRole(cfg.AdminRoleID), chatHandler.ContactsAt)

	admin := api.Group("/admin/connection-requests", middleware.RequireRole(cfg.AdminRoleID))
	admin.POST("", adminHandler.Inject)
	admin.POST("/:id/approve", adminHandler.Approve)
	admin.POST("/:id/reject", adminHandler.Reject)
	admin.GET("/stats", adminHandler.Stats)

	handlers.RegisterDebugRoutes(engine, registry, auditor, cfg.DebugRoutes)

	grpcSrv := grpcserver.New(cfg.ServiceName)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc server stopped: %v", err)
		}
	}()

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}
	go func() {
		log.Printf("http: listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked sockets are not tracked by Shutdown
	for _, userID := range registry.OnlineUsers() {
		registry.DisconnectUser(userID)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
