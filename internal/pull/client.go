package pull

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/internal/ratelimit"
	"marketfeed/logger"
)

const (
	headerLimit     = "X-Bapi-Limit"
	headerRemaining = "X-Bapi-Limit-Status"
	headerReset     = "X-Bapi-Limit-Reset-Timestamp"
)

// Client is the admission-controlled pull API client. Every request passes
// the sliding-window limiter and a coarse per-second pacer before it leaves
// the process, and every response feeds its quota headers back to the
// limiter.
type Client struct {
	cfg      *config.Config
	http     *http.Client
	limiter  *ratelimit.Limiter
	pacer    *rate.Limiter
	log      *logger.Log
	baseURL  string
	category string
}

func NewClient(cfg *config.Config, limiter *ratelimit.Limiter) *Client {
	rps := cfg.RateLimit.EndpointDefault
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: 10 * time.Second,
		},
		limiter:  limiter,
		pacer:    rate.NewLimiter(rate.Limit(rps), 1),
		log:      logger.GetLogger(),
		baseURL:  strings.TrimRight(cfg.Exchange.RestURL, "/"),
		category: cfg.Exchange.Category,
	}
}

// get performs one admitted GET against an endpoint and returns the result
// body of the envelope.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (json.RawMessage, error) {
	if _, err := c.limiter.Acquire(ctx, endpoint); err != nil {
		metrics.IncrementPullCall(endpoint, "admission_timeout")
		return nil, err
	}
	if err := c.pacer.Wait(ctx); err != nil {
		metrics.IncrementPullCall(endpoint, "admission_timeout")
		return nil, fmt.Errorf("pacer wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncrementPullCall(endpoint, "transport_error")
		return nil, fmt.Errorf("pull %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.observeQuota(endpoint, resp.Header)

	if resp.StatusCode != http.StatusOK {
		metrics.IncrementPullCall(endpoint, "http_error")
		return nil, fmt.Errorf("pull %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.IncrementPullCall(endpoint, "decode_error")
		return nil, fmt.Errorf("pull %s: decode: %w", endpoint, err)
	}

	if envelope.RetCode != 0 {
		// Server-side rejections, including unanticipated quota errors,
		// surface as retryable failures for the next scheduler tick.
		outcome := "api_error"
		if isRateLimitMessage(envelope.RetMsg) {
			outcome = "quota_error"
			c.log.WithComponent("pull_client").WithFields(logger.Fields{
				"endpoint": endpoint,
				"ret_code": envelope.RetCode,
				"ret_msg":  envelope.RetMsg,
			}).Warn("rate limit exceeded")
		}
		metrics.IncrementPullCall(endpoint, outcome)
		return nil, fmt.Errorf("pull %s: retCode %d: %s", endpoint, envelope.RetCode, envelope.RetMsg)
	}

	metrics.IncrementPullCall(endpoint, "success")
	return envelope.Result, nil
}

// observeQuota feeds server-reported quota headers into the limiter so the
// next admission adapts to the server's view.
func (c *Client) observeQuota(endpoint string, header http.Header) {
	rawLimit := header.Get(headerLimit)
	rawRemaining := header.Get(headerRemaining)
	if rawLimit == "" && rawRemaining == "" {
		return
	}

	limit, err := strconv.Atoi(rawLimit)
	if err != nil {
		c.log.WithComponent("pull_client").WithFields(logger.Fields{
			"header": headerLimit,
			"value":  rawLimit,
		}).Debug("failed to parse limit header")
		return
	}
	remaining, err := strconv.Atoi(rawRemaining)
	if err != nil {
		c.log.WithComponent("pull_client").WithFields(logger.Fields{
			"header": headerRemaining,
			"value":  rawRemaining,
		}).Debug("failed to parse remaining header")
		return
	}

	reset := time.Now().Add(time.Second)
	if rawReset := header.Get(headerReset); rawReset != "" {
		if ms, err := strconv.ParseInt(rawReset, 10, 64); err == nil {
			reset = time.UnixMilli(ms)
		}
	}

	c.limiter.Observe(endpoint, limit, remaining, reset)
}

// isRateLimitMessage detects quota rejections from the message text, which
// varies by deployment.
func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "too many visits")
}
