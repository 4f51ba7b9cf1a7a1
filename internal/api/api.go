package api

import (
	"net/http"

	messageHandler "message-bridge/internal/messages/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router         *gin.RouterGroup
	messageHandler messageHandler.Handler
	metricsHandler http.Handler
}

func New(router *gin.RouterGroup, messageHandler messageHandler.Handler, metricsHandler http.Handler) API {
	return API{
		router:         router,
		messageHandler: messageHandler,
		metricsHandler: metricsHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.GET("/", a.messageHandler.HandleHealthCheck)
	a.router.POST("/send", a.messageHandler.HandleSendMessage)
	if a.metricsHandler != nil {
		a.router.GET("/metrics", gin.WrapH(a.metricsHandler))
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
