package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"github.com/jaennil/tileproxy/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	URLTemplate string
	Operator    string
	Timeout     time.Duration
	// RPS caps outbound requests per second. Zero disables the cap.
	RPS   float64
	Burst int
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

type Client struct {
	httpClient  *http.Client
	urlTemplate string
	userAgent   string
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		urlTemplate: cfg.URLTemplate,
		userAgent:   "Tile Proxy, Operator: " + cfg.Operator,
		timeout:     timeout,
		limiter:     limiter,
		logger:      l,
	}
}

func (c *Client) URL(k entity.TileKey) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(k.Z),
		"{x}", strconv.Itoa(k.X),
		"{y}", strconv.Itoa(k.Y),
	).Replace(c.urlTemplate)
}

// Fetch streams the upstream tile for k into dst and returns the number of bytes written.
// The whole call, including waiting for the outbound limiter, is bounded by the client timeout.
// On error dst may hold a partial body; discarding it is the caller's job.
func (c *Client) Fetch(ctx context.Context, k entity.TileKey, dst io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.URL(k)

	ctx, span := telemetry.Tracer().Start(ctx, "upstream.Fetch")
	span.SetAttributes(attribute.String("tile", k.String()), attribute.String("url.full", url))
	defer span.End()

	n, err := c.fetch(ctx, url, dst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return n, err
	}
	span.SetAttributes(attribute.Int64("tile.bytes", n))
	return n, nil
}

func (c *Client) fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.UpstreamFailures.Inc()
			return 0, fmt.Errorf("upstream rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("fetching from upstream", "url", url)
	metrics.UpstreamRequests.Inc()

	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamFailures.Inc()
		c.logger.Warn("failed to fetch from upstream", "url", url, "error", err)
		return 0, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamFailures.Inc()
		c.logger.Warn("upstream returned non-2xx", "url", url, "status", resp.StatusCode)
		return 0, &StatusError{Code: resp.StatusCode}
	}

	n, err := io.Copy(dst, resp.Body)
	metrics.UpstreamBytes.Add(float64(n))
	if err != nil {
		metrics.UpstreamFailures.Inc()
		c.logger.Warn("failed to read tile body", "url", url, "bytes", n, "error", err)
		return n, fmt.Errorf("failed to read tile data: %w", err)
	}

	c.logger.Debug("fetched tile from upstream", "url", url, "bytes", n, "duration", time.Since(start))
	return n, nil
}
