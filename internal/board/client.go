// Package board is the Board Synchronizer (spec.md §4.7): the HTTP
// client, an inbound polling loop, and synchronous outbound status
// pushes (Synchronizer.PushIfChanged) that keep the external review
// board and the Task Store eventually consistent in both directions,
// respecting a 3 requests/second cap.
//
// Config/ConfigFromEnv and the *http.Client-with-explicit-timeout shape
// are grounded on internal/platform/sendgrid/client.go. The retry/back-
// off helpers are internal/pkg/httpx/httpx.go, copied into
// internal/platform/httpx and reused here unmodified.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/httpx"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// Config is the Board Synchronizer's HTTP client configuration.
type Config struct {
	BaseURL     string
	APIToken    string
	Timeout     time.Duration
	MaxRetries  int
	DatabaseIDs []string
	// SyncInterval is how often the inbound poll loop runs, clamped to
	// [10s, 600s] per spec.md §6.
	SyncInterval time.Duration
}

// ConfigFromEnv reads BOARD_BASE_URL, BOARD_API_TOKEN,
// BOARD_DATABASE_IDS (comma-separated), BOARD_SYNC_INTERVAL_SECONDS,
// BOARD_TIMEOUT_SECONDS, BOARD_MAX_RETRIES.
func ConfigFromEnv() Config {
	ids := strings.Split(strings.TrimSpace(os.Getenv("BOARD_DATABASE_IDS")), ",")
	filtered := ids[:0]
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			filtered = append(filtered, id)
		}
	}
	return Config{
		BaseURL:      strings.TrimSpace(os.Getenv("BOARD_BASE_URL")),
		APIToken:     strings.TrimSpace(os.Getenv("BOARD_API_TOKEN")),
		Timeout:      time.Duration(envutil.Int("BOARD_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRetries:   envutil.Int("BOARD_MAX_RETRIES", 4),
		DatabaseIDs:  filtered,
		SyncInterval: time.Duration(envutil.IntClamped("BOARD_SYNC_INTERVAL_SECONDS", 60, 10, 600)) * time.Second,
	}
}

// Page is the external board's representation of one Task.
type Page struct {
	ID             string
	ChannelID      string
	Title          string
	Topic          string
	Narrative      string
	Priority       domain.Priority
	BoardStatus    string
	RejectFeedback string
}

// Client talks to the external board over HTTP, rate limited to 3
// requests/second (spec.md §4.7).
type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("board: BOARD_BASE_URL is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("board: BOARD_API_TOKEN is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 4
	}
	return &Client{
		log:        log.With("client", "BoardClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(3), 3),
	}, nil
}

// ListUpdatedPages lists every page of every configured database id;
// it keeps no watermark, so each call returns all pages, changed or
// not. The limiter call below is what
// enforces the 3 req/s cap across every method on Client, inbound and
// outbound alike.
func (c *Client) ListUpdatedPages(ctx context.Context) ([]Page, error) {
	var all []Page
	for _, dbID := range c.cfg.DatabaseIDs {
		pages, err := c.listPagesForDatabase(ctx, dbID)
		if err != nil {
			return nil, err
		}
		all = append(all, pages...)
	}
	return all, nil
}

func (c *Client) listPagesForDatabase(ctx context.Context, databaseID string) ([]Page, error) {
	var out []Page
	raw, err := c.doWithRetry(ctx, http.MethodGet, "/databases/"+databaseID+"/pages", nil)
	if err != nil {
		return nil, err
	}
	var decoded []wirePage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apierr.New(apierr.KindBadInput, fmt.Errorf("decode board pages: %w", err))
	}
	for _, w := range decoded {
		out = append(out, w.toPage())
	}
	return out, nil
}

// PushStatus reports a Task's core Status (translated via StatusToBoard)
// back to its board page. Called by Synchronizer.PushIfChanged when a
// Task's status differs from the last one pushed.
func (c *Client) PushStatus(ctx context.Context, pageID string, status domain.Status) error {
	boardName, ok := StatusToBoard[status]
	if !ok {
		return fmt.Errorf("no board status mapping for %q", status)
	}
	body, _ := json.Marshal(map[string]string{"status": boardName})
	_, err := c.doWithRetry(ctx, http.MethodPatch, "/pages/"+pageID, body)
	return err
}

type wirePage struct {
	ID             string `json:"id"`
	ChannelID      string `json:"channel_id"`
	Title          string `json:"title"`
	Topic          string `json:"topic"`
	Narrative      string `json:"narrative_direction"`
	Priority       string `json:"priority"`
	Status         string `json:"status"`
	RejectFeedback string `json:"reject_feedback"`
}

func (w wirePage) toPage() Page {
	p := domain.PriorityNormal
	switch strings.ToLower(w.Priority) {
	case "high":
		p = domain.PriorityHigh
	case "low":
		p = domain.PriorityLow
	}
	return Page{
		ID:             w.ID,
		ChannelID:      w.ChannelID,
		Title:          w.Title,
		Topic:          w.Topic,
		Narrative:      w.Narrative,
		Priority:       p,
		BoardStatus:    w.Status,
		RejectFeedback: w.RejectFeedback,
	}
}

// doWithRetry issues one HTTP request, retrying IsRetryableHTTPStatus /
// IsRetryableError outcomes up to cfg.MaxRetries times with jittered
// back-off, honoring any Retry-After header the board sends on 429.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
				return nil, apierr.New(apierr.KindTransient, err)
			}
			time.Sleep(httpx.JitterSleep(backoff))
			backoff *= 2
			continue
		}

		out, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, apierr.NewHTTP(apierr.KindAuthFailed, resp.StatusCode, fmt.Errorf("board auth failed: %s", string(out)))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return out, nil
		}
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) || attempt == c.cfg.MaxRetries {
			kind := apierr.KindPermanent
			if resp.StatusCode == http.StatusTooManyRequests {
				kind = apierr.KindRateLimited
			}
			return nil, apierr.NewHTTP(kind, resp.StatusCode, fmt.Errorf("board request failed: %s", string(out)))
		}
		sleep := httpx.RetryAfterDuration(resp, backoff, 30*time.Second)
		time.Sleep(sleep)
		backoff *= 2
	}
	return nil, lastErr
}
