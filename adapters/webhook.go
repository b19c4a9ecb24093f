// Package adapters provides ticket.Adapter implementations for the API
// fallback path. Provider-specific REST adapters live outside this repo;
// the webhook adapter bridges to them over HTTP using the normalized
// createTicket contract.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ticketpilot/ticket"
)

// WebhookAdapter POSTs the intent as JSON to a provider's ticket endpoint
// and expects the normalized adapter response back:
//
//	{"status":"ok","ticket_id":"..."} or {"status":"error","code":...,"body":"..."}
type WebhookAdapter struct {
	URL    string
	Client *http.Client
}

func NewWebhookAdapter(url string) *WebhookAdapter {
	return &WebhookAdapter{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *WebhookAdapter) CreateTicket(ctx context.Context, intent *ticket.Intent) (*ticket.AdapterResult, error) {
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adapter request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read adapter response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ticket.AdapterResult{
			Status: "error",
			Code:   resp.StatusCode,
			Body:   string(body),
		}, nil
	}

	var result ticket.AdapterResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode adapter response: %w", err)
	}
	if result.Status == "" {
		result.Status = "ok"
	}
	return &result, nil
}

// RegisterWebhooks populates the registry from a provider -> URL map.
func RegisterWebhooks(registry *ticket.Registry, urls map[string]string) {
	for provider, url := range urls {
		if url == "" {
			continue
		}
		registry.Register(provider, NewWebhookAdapter(url))
	}
}
