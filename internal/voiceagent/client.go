// Package voiceagent provides the client for the external voice-call platform:
// paged conversation listing, per-conversation detail fetch, and the field
// extraction shared with webhook processing.
package voiceagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"loadline_backend/platform/apperr"
	"loadline_backend/platform/config"
	"loadline_backend/platform/logger"

	"golang.org/x/time/rate"
)

// Conversation is one entry of the platform's call-listing API.
type Conversation struct {
	ID                string `json:"conversation_id"`
	StartTimeUnixSecs int64  `json:"start_time_unix_secs"`
	Status            string `json:"status"`
}

// StartedAt returns the conversation start time.
func (c Conversation) StartedAt() time.Time {
	return time.Unix(c.StartTimeUnixSecs, 0).UTC()
}

// Detail is the deep per-conversation payload. It is kept raw so the same
// extractor chains work for webhook deliveries and reconciliation fetches.
type Detail struct {
	Raw map[string]any
}

// Completion extracts the structured completion fields from the detail.
func (d Detail) Completion() Completion {
	return ExtractCompletion(d.Raw)
}

// Client calls the external voice platform.
// All requests share one rate limiter so the reconciliation sweeper cannot
// exceed the platform's limits, and retries are bounded, never infinite.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	pageSize   int
	log        *logger.Logger
}

// NewClient creates a platform client from configuration.
func NewClient(cfg config.VoiceAgentConfig, log *logger.Logger) *Client {
	rps := cfg.GetVoiceAgentRequestsPerSecond()
	if rps <= 0 {
		rps = 1
	}
	retries := cfg.GetVoiceAgentMaxRetries()
	if retries < 1 {
		retries = 1
	}
	pageSize := cfg.GetVoiceAgentPageSize()
	if pageSize < 1 {
		pageSize = 100
	}

	return &Client{
		baseURL:    cfg.GetVoiceAgentBaseURL(),
		apiKey:     cfg.GetVoiceAgentAPIKey(),
		httpClient: &http.Client{Timeout: cfg.GetVoiceAgentTimeout()},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: retries,
		pageSize:   pageSize,
		log:        log,
	}
}

type listResponse struct {
	Conversations []Conversation `json:"conversations"`
	HasMore       bool           `json:"has_more"`
	NextCursor    string         `json:"next_cursor"`
}

// ListConversations returns all conversations started at or after since,
// following pagination cursors until exhausted.
func (c *Client) ListConversations(ctx context.Context, since time.Time) ([]Conversation, error) {
	var all []Conversation
	cursor := ""

	for {
		query := url.Values{}
		query.Set("page_size", strconv.Itoa(c.pageSize))
		query.Set("call_start_after_unix", strconv.FormatInt(since.Unix(), 10))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page listResponse
		if err := c.getJSON(ctx, "/v1/convai/conversations", query, &page); err != nil {
			return nil, err
		}

		for _, conv := range page.Conversations {
			if conv.StartedAt().Before(since) {
				continue
			}
			all = append(all, conv)
		}

		if !page.HasMore || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// GetConversation fetches the full detail for one conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (Detail, error) {
	var raw map[string]any
	path := "/v1/convai/conversations/" + url.PathEscape(conversationID)
	if err := c.getJSON(ctx, path, nil, &raw); err != nil {
		return Detail{}, err
	}
	return Detail{Raw: raw}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, retryable, err := c.doOnce(ctx, path, query)
		if err == nil {
			return json.Unmarshal(body, out)
		}
		lastErr = err
		if !retryable {
			break
		}

		if attempt < c.maxRetries {
			delay := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return apperr.Wrap(apperr.KindUnavailable, "voice platform request failed", lastErr).WithOp("voiceagent.get " + path)
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values) (body []byte, retryable bool, err error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("voice platform returned %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("voice platform returned %d", resp.StatusCode)
	}
}
