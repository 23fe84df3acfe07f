package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/ntur101/lunchmeet-chat-backend/internal/cache"
	"github.com/ntur101/lunchmeet-chat-backend/internal/chat"
	"github.com/ntur101/lunchmeet-chat-backend/internal/handlers"
	"github.com/ntur101/lunchmeet-chat-backend/internal/middleware"
	"github.com/ntur101/lunchmeet-chat-backend/internal/repository"
	"github.com/ntur101/lunchmeet-chat-backend/internal/service"
	"github.com/ntur101/lunchmeet-chat-backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "LunchMeet Chat Backend",
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize database connection (chat roster)
	db, err := repository.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsedDB, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsedDB
		}
	}

	// Initialize the event store: Redis in deployment, in-memory when
	// Redis is unreachable (single-process dev mode).
	var eventStore store.EventStore
	redisStore := store.NewRedisStore(redisAddr, redisPassword, redisDB)
	if err := redisStore.Ping(context.Background()); err != nil {
		log.Printf("WARNING: Redis event store unreachable: %v. Using in-memory store.", err)
		eventStore = store.NewMemoryStore()
	} else {
		log.Println("Redis event store connected successfully")
		eventStore = redisStore
	}

	// Initialize Redis cache (chat list rows)
	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
	}
	chatListCache := cache.NewChatListCache(redisCache)

	// Initialize repositories and services
	chatRepo := repository.NewChatRepository(db)
	chatService := service.NewChatService(chatRepo)

	// Initialize the chat engine
	messageLog := chat.NewMessageLog(eventStore)
	metadata := chat.NewMetadataStore(eventStore)
	watermarks := chat.NewWatermarkStore(eventStore)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(chatService, messageLog, metadata, watermarks, chatListCache)
	chatHandler := handlers.NewChatHandler(chatService, messageLog, metadata, watermarks, chatListCache)

	// Protected routes
	api := app.Group("/api", middleware.OriginAllowed(), middleware.CSRFRequired(), middleware.AuthRequired())
	api.Get("/chats", chatHandler.GetChats)
	api.Post("/chats", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	}), chatHandler.CreateChat)
	api.Get("/chats/:id/messages", chatHandler.GetMessages)
	api.Post("/chats/:id/messages", chatHandler.SendMessage)
	api.Post("/chats/:id/read", chatHandler.MarkRead)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(),
		middleware.AuthRequired(),
		func(c *fiber.Ctx) error {
			// Upgrade to WebSocket
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "LunchMeet chat backend is running",
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s...", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
