package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

const attribution = `Map Tile Proxy

Attribution Required:
© OpenStreetMap contributors - https://www.openstreetmap.org/copyright

This service proxies map tiles. Please ensure proper attribution in your application.`

func (h *Handler) Attribution(c *gin.Context) {
	c.String(http.StatusOK, attribution)
}
