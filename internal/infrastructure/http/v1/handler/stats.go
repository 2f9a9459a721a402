package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/middleware"
)

type statsResponse struct {
	Fetches  entity.FetchStats `json:"fetches"`
	Sessions int               `json:"sessions"`
}

func (h *Handler) Stats(c *gin.Context) {
	l := middleware.Logger(c)
	ctx := c.Request.Context()

	fetches, err := h.ledger.Stats(ctx)
	if err != nil {
		l.Error("failed to read fetch stats", "error", err)
		h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
		return
	}

	sessions, err := h.sessions.Count(ctx)
	if err != nil {
		l.Error("failed to count sessions", "error", err)
		h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "stats", statsResponse{
		Fetches:  fetches,
		Sessions: sessions,
	})
}
