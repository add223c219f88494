package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// metamock imitates the WhatsApp Cloud API send endpoint so the gateway can
// be exercised without a real business account. It answers the shapes the
// real Graph API answers: a wamid on success, the Graph error envelope on
// failure, and out-of-session rejections at a configurable rate so the
// template fallback path can be driven locally.

const outOfSessionCode = 131047

type sendRequest struct {
	MessagingProduct string `json:"messaging_product" binding:"required"`
	To               string `json:"to" binding:"required"`
	Type             string `json:"type"`
	Text             *struct {
		Body string `json:"body"`
	} `json:"text"`
	Template *struct {
		Name string `json:"name"`
	} `json:"template"`
}

type sendResponse struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []responseContact `json:"contacts"`
	Messages         []responseMessage `json:"messages"`
}

type responseContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type responseMessage struct {
	ID string `json:"id"`
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FBTraceID    string `json:"fbtrace_id"`
}

// MockGraph holds the tunable failure behavior.
type MockGraph struct {
	outOfSessionRate float64
	failureRate      float64
	minDelay         time.Duration
	maxDelay         time.Duration
	rng              *rand.Rand
}

func NewMockGraph(outOfSessionRate, failureRate float64, minDelay, maxDelay time.Duration) *MockGraph {
	return &MockGraph{
		outOfSessionRate: outOfSessionRate,
		failureRate:      failureRate,
		minDelay:         minDelay,
		maxDelay:         maxDelay,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockGraph) randomDelay() time.Duration {
	if m.maxDelay <= m.minDelay {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(m.maxDelay-m.minDelay)))
}

func (m *MockGraph) wamid() string {
	return "wamid.mock." + uuid.New().String()
}

type Handler struct {
	graph *MockGraph
}

func NewHandler(graph *MockGraph) *Handler {
	return &Handler{graph: graph}
}

// SendMessage mirrors POST /{version}/{phone_number_id}/messages.
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": graphError{
			Message:   "Invalid parameter: " + err.Error(),
			Type:      "OAuthException",
			Code:      100,
			FBTraceID: uuid.New().String(),
		}})
		return
	}

	time.Sleep(h.graph.randomDelay())

	phoneNumberID := c.Param("phone_number_id")
	roll := h.graph.rng.Float64()

	// Templates always go through: the session window does not apply.
	if req.Type != "template" && roll < h.graph.outOfSessionRate {
		log.Warn().
			Str("phone_number_id", phoneNumberID).
			Str("to", req.To).
			Msg("rejecting send: outside customer service window")
		c.JSON(http.StatusBadRequest, gin.H{"error": graphError{
			Message:   "Message failed to send because more than 24 hours have passed since the customer last replied to this number.",
			Type:      "OAuthException",
			Code:      outOfSessionCode,
			FBTraceID: uuid.New().String(),
		}})
		return
	}
	if roll < h.graph.outOfSessionRate+h.graph.failureRate {
		log.Warn().
			Str("phone_number_id", phoneNumberID).
			Str("to", req.To).
			Msg("rejecting send: generic failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": graphError{
			Message:   "An unexpected error has occurred. Please retry your request later.",
			Type:      "OAuthException",
			Code:      1,
			FBTraceID: uuid.New().String(),
		}})
		return
	}

	id := h.graph.wamid()
	log.Info().
		Str("phone_number_id", phoneNumberID).
		Str("to", req.To).
		Str("type", req.Type).
		Str("wamid", id).
		Msg("message accepted")

	c.JSON(http.StatusOK, sendResponse{
		MessagingProduct: "whatsapp",
		Contacts:         []responseContact{{Input: req.To, WaID: req.To}},
		Messages:         []responseMessage{{ID: id}},
	})
}

// UpdateConfig changes failure behavior at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		OutOfSessionRate *float64 `json:"out_of_session_rate"`
		FailureRate      *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if config.OutOfSessionRate != nil && *config.OutOfSessionRate >= 0 && *config.OutOfSessionRate <= 1.0 {
		h.graph.outOfSessionRate = *config.OutOfSessionRate
		log.Info().Float64("rate", *config.OutOfSessionRate).Msg("updated out-of-session rate")
	}
	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.graph.failureRate = *config.FailureRate
		log.Info().Float64("rate", *config.FailureRate).Msg("updated failure rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"out_of_session_rate": h.graph.outOfSessionRate,
		"failure_rate":        h.graph.failureRate,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"timestamp":           time.Now(),
		"out_of_session_rate": h.graph.outOfSessionRate,
		"failure_rate":        h.graph.failureRate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.POST("/:version/:phone_number_id/messages", handler.SendMessage)
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	outOfSessionRate := getEnvFloat("OUT_OF_SESSION_RATE", 0)
	failureRate := getEnvFloat("FAILURE_RATE", 0)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 300*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("out_of_session_rate", outOfSessionRate).
		Float64("failure_rate", failureRate).
		Msg("starting mock WhatsApp Cloud API")

	graph := NewMockGraph(outOfSessionRate, failureRate, minDelay, maxDelay)
	handler := NewHandler(graph)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
