package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y las rutas del chat.
func NewRouter(logger *zap.Logger, chatH *ChatHandler) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	chat := r.Group("/chat")
	chat.POST("/persona", chatH.SelectPersona)
	chat.POST("/text", chatH.SendText)
	chat.POST("/files", chatH.SendFiles)
	chat.POST("/captures", chatH.SendCaptures)
	chat.GET("/messages", chatH.ListMessages)
	chat.GET("/history", chatH.LoadHistory)
	chat.GET("/events", chatH.StreamEvents)
	chat.DELETE("", chatH.ClearConversation)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
