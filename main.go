package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sjcsvns/school-chatbot/config"
	"github.com/sjcsvns/school-chatbot/controller"
	"github.com/sjcsvns/school-chatbot/services"
)

func main() {
	cfg := config.Load()

	// One keep-alive client shared by every outbound call. It holds no
	// per-request state, so concurrent requests share the pool safely, and
	// reused connections amortize TLS setup across page fetches.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	profiles := services.NewProfileService(cfg.ProfilePath)
	go profiles.Watch(context.Background())

	scraper := services.NewScraperService(httpClient, cfg.SchoolPages)
	contexts := services.NewContextService(profiles, cfg.ContextCharLimit)
	completion := services.NewCompletionService(httpClient, cfg.CompletionURL, cfg.CompletionKey, cfg.Model, cfg.MaxTokens)
	notify := services.NewNotifyService(httpClient, cfg.ESP32Address, cfg.DeepgramURL, cfg.DeepgramKey, cfg.TTSModel)

	chatController := controller.NewChatController(scraper, contexts, completion, notify)

	router := gin.Default()

	// CORS middleware so the browser widget can call us from anywhere.
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Request-ID middleware: every response carries an ID that can be grepped
	// out of the logs.
	router.Use(func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "school-chatbot",
			"version": "1.0.0",
		})
	})

	router.POST("/chat", chatController.Chat)
	router.GET("/esp32", chatController.ESP32)
	router.GET("/tts", chatController.TTS)
	router.POST("/say", chatController.Say)

	if cfg.CompletionKey == "" {
		log.Println("WARNING: OPENAI_API_KEY is not set; every /chat call will fail at the completion client.")
	}
	if cfg.ESP32Address == "" {
		log.Println("ESP32_IP not set; speaker relay is disabled.")
	}

	log.Printf("Server running at http://localhost:%s", cfg.Port)
	log.Printf("Scraping %d pages per chat request", len(cfg.SchoolPages))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}
