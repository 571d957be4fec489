package controller

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sjcsvns/school-chatbot/models"
	"github.com/sjcsvns/school-chatbot/services"
)

// ChatController handles the HTTP surface. It depends on the services that
// make up the scrape-compose-complete pipeline plus the side channels.
type ChatController struct {
	scraper    services.ScraperService
	contexts   services.ContextService
	completion services.CompletionService
	notify     services.NotifyService
}

// NewChatController is called from main.go to inject the service dependencies.
func NewChatController(scraper services.ScraperService, contexts services.ContextService,
	completion services.CompletionService, notify services.NotifyService) *ChatController {
	return &ChatController{
		scraper:    scraper,
		contexts:   contexts,
		completion: completion,
		notify:     notify,
	}
}

// Chat is the Gin handler for POST /chat. It runs the full pipeline for one
// message and answers {"reply": ...}, with a best-effort speaker notify once
// the reply is known.
func (c *ChatController) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Field 'message' is required"})
		return
	}

	reply, ok := c.answer(ctx, req.Message)
	if !ok {
		return
	}

	c.notify.NotifyDeviceAsync(reply)
	ctx.JSON(http.StatusOK, models.ChatResponse{Reply: reply})
}

// ESP32 is the Gin handler for GET /esp32?q=, the endpoint the speaker itself
// asks questions through. Same pipeline as /chat, query-string transport.
func (c *ChatController) ESP32(ctx *gin.Context) {
	question := strings.TrimSpace(ctx.Query("q"))
	if question == "" {
		ctx.JSON(http.StatusOK, models.ChatResponse{Reply: "No question received"})
		return
	}
	log.Printf("CONTROLLER: ESP32 asked: %s", question)

	reply, ok := c.answer(ctx, question)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, models.ChatResponse{Reply: reply})
}

// TTS is the Gin handler for GET /tts?text=. It proxies the text through
// Deepgram and streams the WAV bytes back.
func (c *ChatController) TTS(ctx *gin.Context) {
	text := ctx.Query("text")
	if text == "" {
		ctx.String(http.StatusBadRequest, "No text")
		return
	}

	audio, err := c.notify.Synthesize(ctx.Request.Context(), text)
	if err != nil {
		log.Printf("CONTROLLER: TTS failed: %v", err)
		ctx.String(http.StatusInternalServerError, "TTS failed")
		return
	}
	ctx.Data(http.StatusOK, "audio/wav", audio)
}

// Say is the Gin handler for POST /say: relay arbitrary text to the speaker
// and wait for the outcome, unlike the fire-and-forget notify after /chat.
func (c *ChatController) Say(ctx *gin.Context) {
	var req models.SayRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No text"})
		return
	}
	if !c.notify.DeviceConfigured() {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "ESP32_IP is not configured"})
		return
	}

	if err := c.notify.NotifyDevice(ctx.Request.Context(), req.Text); err != nil {
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Failed to reach ESP32",
			Details: err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "sent-to-esp32"})
}

// answer runs scrape, compose, complete for one message. Scrape failures have
// already degraded to empty fragments by the time the orchestrator returns;
// only the completion call can fail here, and this is the one layer that
// translates its errors into HTTP responses.
func (c *ChatController) answer(ctx *gin.Context, message string) (string, bool) {
	log.Printf("CONTROLLER: Starting fast scrape...")
	scraped := c.scraper.ScrapeAll(ctx.Request.Context())
	compositeContext := c.contexts.ComposeContext(scraped)
	prompt := c.contexts.ComposePrompt(compositeContext, message)

	reply, err := c.completion.Complete(ctx.Request.Context(), prompt)
	if err != nil {
		var shapeErr *services.UpstreamShapeError
		if errors.As(err, &shapeErr) {
			ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "Invalid response from completion API",
				Details: shapeErr.Details(),
			})
			return "", false
		}
		log.Printf("CONTROLLER: Error connecting to completion API: %v", err)
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Error connecting to completion API"})
		return "", false
	}

	return reply, true
}
