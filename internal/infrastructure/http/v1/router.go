package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/middleware"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware("/api/v1/healthz", "/metrics"))
	}

	r.Use(middleware.ClientIdentity(middleware.AnonymousIdentity()))
	r.Use(middleware.GinZapLogger(l))

	r.GET("/", handler.Attribution)

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/stats", handler.Stats)
	v1.GET("/tile", handler.Tile)
	v1.GET("/tile/:z/:x/:y", handler.Tile)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
