package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/middleware"
	"github.com/jaennil/tileproxy/internal/repository/fetchlog"
	"github.com/jaennil/tileproxy/internal/repository/session"
	"github.com/jaennil/tileproxy/internal/usecase"
)

const (
	internalServerErrorText = "internal server error"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type Handler struct {
	validate        *validator.Validate
	throttleUseCase *usecase.ThrottleUseCase
	tileUseCase     *usecase.TileCacheUseCase
	ledger          fetchlog.FetchLog
	sessions        session.SessionStore
}

func NewHandler(
	v *validator.Validate,
	throttle *usecase.ThrottleUseCase,
	tiles *usecase.TileCacheUseCase,
	ledger fetchlog.FetchLog,
	sessions session.SessionStore,
) *Handler {
	return &Handler{
		validate:        v,
		throttleUseCase: throttle,
		tileUseCase:     tiles,
		ledger:          ledger,
		sessions:        sessions,
	}
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	c.JSON(code, response{
		Success: code < 400,
		Message: message,
		Data:    data,
	})
}

// respondError maps use case errors to plaintext responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	code, message := http.StatusInternalServerError, internalServerErrorText

	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		code, message = http.StatusBadRequest, usecase.ErrInvalidInput.Error()
	case errors.Is(err, usecase.ErrForbidden):
		code, message = http.StatusForbidden, usecase.ErrForbidden.Error()
	case errors.Is(err, usecase.ErrUpstreamFetch):
		message = usecase.ErrUpstreamFetch.Error()
	}

	if code >= 500 {
		middleware.Logger(c).Error("http server error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", code,
			"error", err,
		)
	}

	_ = c.Error(err)
	c.String(code, message)
}
