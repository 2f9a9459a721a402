package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/middleware"
	"github.com/jaennil/tileproxy/internal/usecase"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"github.com/jaennil/tileproxy/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// TileRequest carries raw coordinates from either the query string or the path.
// Each must be a plain decimal: no sign and no leading zeros, so one tile has exactly one spelling.
type TileRequest struct {
	Z string `form:"z" uri:"z" validate:"required,number,eq=0|startsnotwith=0"`
	X string `form:"x" uri:"x" validate:"required,number,eq=0|startsnotwith=0"`
	Y string `form:"y" uri:"y" validate:"required,number,eq=0|startsnotwith=0"`
}

func (h *Handler) bindTile(c *gin.Context) (entity.TileKey, error) {
	var req TileRequest

	if c.Param("z") != "" {
		if err := c.ShouldBindUri(&req); err != nil {
			return entity.TileKey{}, err
		}
		req.Y = strings.TrimSuffix(req.Y, ".png")
	} else if err := c.ShouldBindQuery(&req); err != nil {
		return entity.TileKey{}, err
	}

	if err := h.validate.Struct(req); err != nil {
		return entity.TileKey{}, err
	}

	var (
		key entity.TileKey
		err error
	)
	if key.Z, err = strconv.Atoi(req.Z); err != nil {
		return entity.TileKey{}, fmt.Errorf("z: %w", err)
	}
	if key.X, err = strconv.Atoi(req.X); err != nil {
		return entity.TileKey{}, fmt.Errorf("x: %w", err)
	}
	if key.Y, err = strconv.Atoi(req.Y); err != nil {
		return entity.TileKey{}, fmt.Errorf("y: %w", err)
	}

	if err := h.validate.Struct(key); err != nil {
		return entity.TileKey{}, err
	}
	return key, nil
}

func (h *Handler) Tile(c *gin.Context) {
	l := middleware.Logger(c)
	ctx := c.Request.Context()
	client := middleware.Identity(c)
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.ClientKey.String(client))

	metrics.TileRequests.Inc()

	key, err := h.bindTile(c)
	if err != nil {
		l.Warn("invalid tile request", "path", c.Request.URL.Path, "query", c.Request.URL.RawQuery, "error", err)
		h.throttleUseCase.ForceBan(ctx, client)
		h.respondError(c, usecase.ErrInvalidInput)
		return
	}

	span.SetAttributes(telemetry.TileKey.String(key.String()))

	d := h.throttleUseCase.Admit(ctx, client)
	span.SetAttributes(telemetry.VerdictKey.String(d.Verdict.String()))
	if !d.Allowed() {
		c.String(d.Status, d.Message)
		return
	}

	allowOrigin, err := h.tileUseCase.CheckAccess(c.GetHeader("Origin"), c.GetHeader("Referer"))
	if allowOrigin != "" {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	l.Debug("tile request", "tile", key)

	tl, err := h.tileUseCase.Resolve(ctx, key)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer tl.Body.Close()

	c.DataFromReader(http.StatusOK, tl.Size, "image/png", tl.Body, map[string]string{
		"Expires":       tl.Expires.UTC().Format(http.TimeFormat),
		"Last-Modified": tl.LastModified.UTC().Format(http.TimeFormat),
		"Cache-Control": "public, max-age=" + strconv.FormatInt(int64(tl.MaxAge.Seconds()), 10),
	})
}
