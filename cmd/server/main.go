package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"furriends-chat/internal/chat"
	"furriends-chat/internal/config"
	"furriends-chat/internal/db"
	myMiddleware "furriends-chat/internal/middleware"
	"furriends-chat/internal/notify"
	"furriends-chat/internal/user"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DB.DSN, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, cfg.DB.ConnMaxLifetime)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL)
	userHandler := user.NewHandler(userService)

	// 5. Chat Feature
	chatRepo := chat.NewRepository(database.Conn)
	broker := chat.NewRedisBroker(redisClient)
	hub := chat.NewHub(broker)
	go hub.Run(context.Background())

	// Offline notifications run through asynq on the same Redis.
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	notifyClient := notify.NewClient(redisOpt)
	defer notifyClient.Close()

	worker := notify.NewWorker(redisOpt, cfg.Worker.Concurrency, chatRepo, redisClient)
	if err := worker.Start(); err != nil {
		log.Fatalf("❌ Failed to start notify worker: %v", err)
	}
	defer worker.Shutdown()
	log.Println("✅ Notify worker running")

	chatService := chat.NewService(chatRepo, userService, hub, notifyClient)
	chatHandler := chat.NewHandler(hub, chatService)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)

		// WebSocket (Real-time change feed)
		r.Get("/ws", chatHandler.ServeWs)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations/{id}/read", chatHandler.MarkRead)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Post("/api/messages", chatHandler.SendMessage)
		r.Patch("/api/messages/{id}", chatHandler.EditMessage)
		r.Delete("/api/messages/{id}", chatHandler.DeleteMessage)
	})

	log.Printf("🚀 Server starting on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		log.Fatal(err)
	}
}
