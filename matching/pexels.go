package matching

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"context"

	"golang.org/x/time/rate"
)

// ErrAuth reports a rejected API key. It is fatal for the whole run:
// retrying cannot fix credentials.
var ErrAuth = errors.New("video search authentication failed")

// pexelsVideo mirrors the fields of the Pexels video search response the
// matcher cares about.
type pexelsVideo struct {
	ID         int     `json:"id"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Duration   float64 `json:"duration"`
	AvgFPS     float64 `json:"avg_fps"`
	VideoFiles []struct {
		Width  int     `json:"width"`
		Height int     `json:"height"`
		FPS    float64 `json:"fps"`
		Link   string  `json:"link"`
	} `json:"video_files"`
}

type pexelsSearchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

// pexelsClient is a minimal Pexels video search client. A shared rate
// limiter paces requests; 429 responses are retried with exponential
// backoff on top of that.
type pexelsClient struct {
	baseURL    string
	apiKey     string
	perPage    int
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newPexelsClient(baseURL, apiKey string, perPage int, requestsPerSecond float64, timeout time.Duration) *pexelsClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &pexelsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		perPage:    perPage,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// search runs one query against the Pexels video search endpoint and
// returns the candidate set in API order.
func (c *pexelsClient) search(ctx context.Context, query string) ([]pexelsVideo, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: PEXELS_API_KEY not set", ErrAuth)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("orientation", "landscape")
	params.Set("per_page", fmt.Sprintf("%d", c.perPage))
	params.Set("order_by", "relevance")
	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		videos, retryable, err := c.doSearch(ctx, searchURL)
		if err == nil {
			return videos, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		log.Printf("[match] search attempt %d for %q failed: %v, retrying in %s", attempt, query, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *pexelsClient) doSearch(ctx context.Context, searchURL string) (videos []pexelsVideo, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: HTTP %d from Pexels", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("pexels rate limited (HTTP 429)")
	default:
		return nil, false, fmt.Errorf("HTTP %d from Pexels", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	var parsed pexelsSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("parse pexels response: %w", err)
	}
	return parsed.Videos, false, nil
}
