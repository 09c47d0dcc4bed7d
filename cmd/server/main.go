package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/cache"
	"rollcall/internal/config"
	"rollcall/internal/repository"
	"rollcall/internal/service"
	"rollcall/internal/transport/rest"
	"rollcall/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx := context.Background()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.Mongo.Database)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize repositories
	sessionRepo := repository.NewSessionRepo(db)
	markRepo := repository.NewMarkRepo(db)
	rosterRepo := repository.NewRosterRepo(db)

	if err := sessionRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create session indexes:", err)
	}
	if err := markRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create mark indexes:", err)
	}

	// Initialize caches
	tokenCache := cache.NewTokenCache(rdb)
	bindingCache := cache.NewBindingCache(rdb)

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize services
	authSvc := service.NewAuthService(cfg.Auth)
	rotator := service.NewRotator(sessionRepo, tokenCache, []byte(cfg.Attendance.TokenSecret))
	sessionSvc := service.NewSessionService(sessionRepo, markRepo, rosterRepo, tokenCache, rotator, cfg.Attendance.SweepOnClose)
	scanSvc := service.NewScanService(sessionRepo, markRepo, bindingCache)
	aggregateSvc := service.NewAggregateService(sessionRepo, markRepo)
	markSvc := service.NewMarkService(sessionRepo, markRepo)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	rotator.SetBroadcaster(wsHub)
	sessionSvc.SetBroadcaster(wsHub)
	scanSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:        authSvc,
		SessionService:     sessionSvc,
		ScanService:        scanSvc,
		AggregateService:   aggregateSvc,
		MarkService:        markSvc,
		WSHub:              wsHub,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}

	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
