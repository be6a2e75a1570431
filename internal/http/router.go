package http

import (
	"github.com/gin-gonic/gin"

	httpH "knowledgehub/internal/http/handlers"
	httpMW "knowledgehub/internal/http/middleware"
	"knowledgehub/internal/logger"
)

type RouterConfig struct {
	Logger       *logger.Logger
	AllowOrigins []string

	DocumentHandler *httpH.DocumentHandler
	QueryHandler    *httpH.QueryHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestID())
	r.Use(httpMW.RequestLogger(cfg.Logger))
	r.Use(httpMW.CORS(cfg.AllowOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	// Documents
	if cfg.DocumentHandler != nil {
		r.POST("/upload", cfg.DocumentHandler.Upload)
		r.GET("/stats", cfg.DocumentHandler.Stats)
		r.GET("/documents", cfg.DocumentHandler.List)
		r.DELETE("/documents/:doc_id", cfg.DocumentHandler.Delete)
	}

	// Query
	if cfg.QueryHandler != nil {
		r.POST("/query", cfg.QueryHandler.Query)
		r.POST("/query/stream", cfg.QueryHandler.QueryStream)
	}
	return r
}
