package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"common-grounds-backend/internal/cache"
	"common-grounds-backend/internal/catalog"
	"common-grounds-backend/internal/config"
	"common-grounds-backend/internal/email"
	"common-grounds-backend/internal/handlers"
	"common-grounds-backend/internal/middleware"
	"common-grounds-backend/internal/push"
	"common-grounds-backend/internal/ratelimit"
	"common-grounds-backend/internal/repository"
	"common-grounds-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Connect to redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping redis")
	}
	log.Info().Msg("Redis connection established")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	linkRepo := repository.NewMagicLinkRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	friendshipRepo := repository.NewFriendshipRepository(db)
	classRepo := repository.NewClassRepository(db)
	userClassRepo := repository.NewUserClassRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Initialize collaborators
	cacheStore := cache.New(redisClient)
	limiter := ratelimit.New(redisClient, "rl")
	sender := email.FromConfig(cfg.Email)
	catalogClient := catalog.NewClient(cfg.Catalog)

	var notifier push.Notifier = push.NopNotifier{}
	if cfg.Push.Enabled {
		apns, err := push.NewAPNSNotifier(cfg.Push)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
		notifier = apns
	}

	// Initialize services
	hub := services.NewClassHub(redisClient)
	authService := services.NewAuthService(
		userRepo, linkRepo, sessionRepo,
		sender, limiter, cfg.JWT.Secret, cfg.Auth, cfg.Limits,
	)
	friendService := services.NewFriendService(friendshipRepo, userRepo, cacheStore, notifier)
	classService := services.NewClassService(classRepo, userClassRepo, friendshipRepo, catalogClient, cacheStore)
	messageService := services.NewMessageService(messageRepo, userClassRepo, hub, limiter, cfg.Limits.PostsPerHour)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	friendHandler := handlers.NewFriendHandler(friendService)
	classHandler := handlers.NewClassHandler(classService)
	messageHandler := handlers.NewMessageHandler(messageService)
	wsHandler := handlers.NewWebSocketHandler(hub, authService, classService)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)
	go runCleanup(hubCtx, linkRepo, sessionRepo)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/request", authHandler.RequestLink)
		r.Post("/auth/verify", authHandler.Verify)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(authService))
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Put("/me/push-token", authHandler.UpdatePushToken)
			r.Delete("/me", authHandler.DeleteAccount)

			r.Post("/friends", friendHandler.Request)
			r.Post("/friends/{friendship_id}/respond", friendHandler.Respond)
			r.Post("/friends/block", friendHandler.Block)
			r.Delete("/friends/{friendship_id}", friendHandler.Unfriend)
			r.Get("/friends", friendHandler.List)

			r.Get("/classes/search", classHandler.Search)
			r.Post("/classes/{class_id}/enroll", classHandler.Enroll)
			r.Delete("/classes/{class_id}/enroll", classHandler.Drop)
			r.Get("/classes/mine", classHandler.Mine)
			r.Get("/classes/common/{friend_id}", classHandler.Common)

			r.Get("/classes/{class_id}/messages", messageHandler.List)
			r.Post("/classes/{class_id}/messages", messageHandler.Post)
			r.Post("/messages/{message_id}/flag", messageHandler.Flag)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	hubCancel()
	if err := hub.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close hub subscription")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// runCleanup periodically purges expired magic links and sessions
func runCleanup(ctx context.Context, links *repository.MagicLinkRepository, sessions *repository.SessionRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if n, err := links.DeleteExpired(ctx, now); err != nil {
				log.Error().Err(err).Msg("Failed to purge expired magic links")
			} else if n > 0 {
				log.Info().Int64("count", n).Msg("Purged expired magic links")
			}
			if n, err := sessions.DeleteExpired(ctx, now); err != nil {
				log.Error().Err(err).Msg("Failed to purge expired sessions")
			} else if n > 0 {
				log.Info().Int64("count", n).Msg("Purged expired sessions")
			}
		}
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
