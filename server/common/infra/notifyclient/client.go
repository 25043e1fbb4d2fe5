package notifyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"workhub/server/common/env"
)

const (
	DispatchPath = "/api/internal/v1/notifications/dispatch"
	KeyHeader    = "X-Internal-Key"
)

const (
	defaultHTTPTimeout      = 5 * time.Second
	defaultFailThreshold    = 3
	defaultEndpointCooldown = 10 * time.Second
)

// DispatchRequest mirrors the body accepted by the internal dispatch route.
type DispatchRequest struct {
	UserID    string  `json:"userId"`
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	CompanyID string  `json:"companyId"`
	ProjectID *string `json:"projectId,omitempty"`
	CreatedBy string  `json:"createdBy"`
}

type Dispatched struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CompanyID string    `json:"companyId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusError is a non-retryable rejection from notifyd (4xx).
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notifyd status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notifyd status %d", e.Status)
}

// Client posts dispatch requests to one or more notifyd instances. Endpoints
// are tried round robin; an endpoint that fails repeatedly is skipped for a
// cooldown period.
type Client struct {
	endpoints []string
	apiKey    string
	http      *http.Client
	next      uint32

	failThreshold    int
	endpointCooldown time.Duration

	mu         sync.Mutex
	failureCnt map[string]int
	cooldownTo map[string]time.Time
}

func NewClient(apiKey string, endpoints ...string) *Client {
	normalized := normalizeEndpoints(endpoints)
	return &Client{
		endpoints:        normalized,
		apiKey:           apiKey,
		http:             &http.Client{Timeout: env.Duration("NOTIFY_HTTP_TIMEOUT", defaultHTTPTimeout)},
		failThreshold:    env.Int("NOTIFY_FAIL_THRESHOLD", defaultFailThreshold),
		endpointCooldown: env.Duration("NOTIFY_ENDPOINT_COOLDOWN", defaultEndpointCooldown),
		failureCnt:       make(map[string]int, len(normalized)),
		cooldownTo:       make(map[string]time.Time, len(normalized)),
	}
}

func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (Dispatched, error) {
	var out Dispatched
	err := c.post(ctx, DispatchPath, req, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("notifyd endpoint is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	start := int(atomic.AddUint32(&c.next, 1)-1) % len(c.endpoints)
	var lastErr error
	for offset := 0; offset < len(c.endpoints); offset++ {
		endpoint := c.endpoints[(start+offset)%len(c.endpoints)]
		if c.isCoolingDown(endpoint, time.Now()) {
			continue
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+path, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(KeyHeader, c.apiKey)

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			lastErr = fmt.Errorf("notifyd request failed endpoint=%s: %w", endpoint, doErr)
			c.onFailure(endpoint, time.Now())
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("notifyd status %d endpoint=%s", resp.StatusCode, endpoint)
			c.onFailure(endpoint, time.Now())
			continue
		}
		if resp.StatusCode >= 300 {
			var rejected struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&rejected)
			_ = resp.Body.Close()
			c.onSuccess(endpoint)
			return &StatusError{Status: resp.StatusCode, Code: rejected.Code, Message: rejected.Error}
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("decode notifyd response: %w", decodeErr)
		}
		c.onSuccess(endpoint)
		return nil
	}

	if lastErr == nil {
		return fmt.Errorf("all notifyd endpoints are cooling down")
	}
	return lastErr
}

func normalizeEndpoints(endpoints []string) []string {
	result := make([]string, 0, len(endpoints))
	seen := map[string]struct{}{}
	for _, endpoint := range endpoints {
		normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

func (c *Client) isCoolingDown(endpoint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldownTo[endpoint]
	if !ok {
		return false
	}
	if now.After(until) {
		delete(c.cooldownTo, endpoint)
		return false
	}
	return true
}

func (c *Client) onFailure(endpoint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := c.failureCnt[endpoint] + 1
	c.failureCnt[endpoint] = count
	if count >= c.failThreshold {
		c.cooldownTo[endpoint] = now.Add(c.endpointCooldown)
		c.failureCnt[endpoint] = 0
	}
}

func (c *Client) onSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCnt[endpoint] = 0
	delete(c.cooldownTo, endpoint)
}
