package api

import (
	"net/http"

	"outreach-server/internal/auth"
	callsHandler "outreach-server/internal/calls/handler"
	"outreach-server/internal/observability"

	"github.com/gin-gonic/gin"
)

type API struct {
	router       *gin.RouterGroup
	callsHandler callsHandler.Handler
	jwtSecret    string
	logger       *observability.Logger
}

func New(router *gin.RouterGroup, callsHandler callsHandler.Handler, jwtSecret string, logger *observability.Logger) API {
	return API{
		router:       router,
		callsHandler: callsHandler,
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")

	// Provider webhooks authenticate out of band, not with operator tokens.
	webhookGroup := apiGroup.Group("/calls/webhook")
	{
		webhookGroup.POST("/voice", a.callsHandler.HandleVoiceWebhook)
		webhookGroup.POST("/status", a.callsHandler.HandleStatusWebhook)
	}

	callsGroup := apiGroup.Group("/calls", auth.Middleware(a.jwtSecret, a.logger))
	{
		callsGroup.POST("", a.callsHandler.HandleStartCall)
		callsGroup.GET("/:id", a.callsHandler.HandleGetCall)
		callsGroup.POST("/:id/cancel", a.callsHandler.HandleCancelCall)
		callsGroup.GET("/:id/stream", a.callsHandler.HandleTranscriptStream)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
