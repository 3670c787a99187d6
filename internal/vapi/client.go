// internal/vapi/client.go
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

// PlaceCallRequest carries everything the provider needs to start one call.
type PlaceCallRequest struct {
	Phone           string
	Purpose         string
	AssistantConfig model.AssistantConfig
	Metadata        map[string]string
}

type PlaceCallResult struct {
	CallID string
	Status string
}

// CallPlacer is the narrow contract the dispatcher depends on.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (*PlaceCallResult, error)
}

// Client talks to the voice provider's call API. Requests wait on a shared
// limiter so a burst of campaign ticks cannot exceed the provider's rate cap.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, apiKey string, callsPerSecond float64) *Client {
	if callsPerSecond <= 0 {
		callsPerSecond = 5
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(callsPerSecond), 1),
	}
}

func (c *Client) PlaceCall(ctx context.Context, req PlaceCallRequest) (*PlaceCallResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	overrides := map[string]any{
		"firstMessage": req.AssistantConfig.FirstMessage,
		"voice":        req.AssistantConfig.Voice,
		"model":        req.AssistantConfig.Model,
	}
	for k, v := range req.AssistantConfig.Extra {
		overrides[k] = v
	}

	body := map[string]any{
		"customer":           map[string]string{"number": req.Phone},
		"purpose":            req.Purpose,
		"assistantOverrides": overrides,
		"metadata":           req.Metadata,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/call", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("place call: provider returned %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("place call: decode response: %w", err)
	}
	return &PlaceCallResult{CallID: out.ID, Status: out.Status}, nil
}

var _ CallPlacer = (*Client)(nil)
