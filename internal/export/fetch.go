package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-projections/internal/browser"
)

// DirectFetcher downloads an export URL with the browser session's cookies.
type DirectFetcher interface {
	Fetch(ctx context.Context, url string, cookies []browser.Cookie) ([]byte, error)
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// HTTPFetcher is a rate-limited resty client.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPFetcher creates a fetcher allowing requestsPerMinute requests.
func NewHTTPFetcher(timeout time.Duration, requestsPerMinute int, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	f := &HTTPFetcher{
		client:  resty.New().SetTimeout(timeout).SetHeader("User-Agent", userAgent),
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		logger:  logger,
	}
	f.client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := f.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		return nil
	})
	return f
}

// Fetch GETs url and returns the body on 200.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, cookies []browser.Cookie) ([]byte, error) {
	jar := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		jar = append(jar, &http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetCookies(jar).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch %s returned %d: %s", url, resp.StatusCode(), truncate(resp.Body(), 200))
	}
	f.logger.Debug("Fetched export", "url", url, "bytes", len(resp.Body()))
	return resp.Body(), nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
