// Package ticket defines the intent, step plan and adapter contract shared
// between the UI automation engine and the provider API fallback path.
package ticket

import (
	"context"
	"fmt"
	"sync"
)

// Step actions understood by the engine.
const (
	ActionFill  = "fill"
	ActionClick = "click"
	ActionWait  = "wait"
)

// Result statuses.
const (
	StatusSuccess         = "success"
	StatusFallbackSuccess = "fallback-success"
	StatusFailure         = "failure"
	StatusDryRun          = "dry-run"
)

// Paths a run can take to its terminal result.
const (
	PathUISuccess      = "ui-success"
	PathUIThenFallback = "ui-then-fallback"
	PathFallbackOnly   = "fallback-only"
	PathTotalFailure   = "total-failure"
)

// Requester identifies the person a ticket is opened for.
type Requester struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Intent is the parsed, validated request handed to the engine by the
// parser collaborator. The engine treats it as read-only.
type Intent struct {
	Action      string            `json:"action"`
	Subject     string            `json:"subject"`
	Description string            `json:"description"`
	Requester   *Requester        `json:"requester,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	Providers   []string          `json:"providers,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Steps       []Step            `json:"steps,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FieldValue resolves a logical field name to its literal value, checking
// the well-known intent fields before the free-form Fields map.
func (in *Intent) FieldValue(field string) string {
	switch field {
	case "subject":
		if in.Subject != "" {
			return in.Subject
		}
	case "description":
		if in.Description != "" {
			return in.Description
		}
	case "priority":
		if in.Priority != "" {
			return in.Priority
		}
	case "requester", "email":
		if in.Requester != nil {
			return in.Requester.Email
		}
	}
	return in.Fields[field]
}

// Step is one action in the resolved plan. The sequence is immutable once
// the engine obtains it.
type Step struct {
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
	Value    string `json:"value,omitempty"`
	WaitMS   int    `json:"wait_ms,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// PasscodeResult carries a one-time code and the channel it came from.
// It is consumed once and discarded.
type PasscodeResult struct {
	Code   string `json:"code"`
	Source string `json:"source"` // "mailbox" or "webmail"
}

// Result is the terminal outcome of one engine run.
type Result struct {
	Status      string `json:"status"`
	Path        string `json:"path,omitempty"`
	RunID       string `json:"run_id"`
	Provider    string `json:"provider"`
	TicketID    string `json:"ticket_id,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	Steps       []Step `json:"steps,omitempty"` // populated for dry-run
}

// AdapterResult is the normalized response from a provider API adapter.
type AdapterResult struct {
	Status   string `json:"status"` // "ok" or "error"
	TicketID string `json:"ticket_id,omitempty"`
	Code     int    `json:"code,omitempty"`
	Body     string `json:"body,omitempty"`
}

// Adapter is the provider API fallback contract. Implementations create a
// ticket directly against the provider's REST API when UI automation has
// been abandoned.
type Adapter interface {
	CreateTicket(ctx context.Context, intent *Intent) (*AdapterResult, error)
}

// Registry maps provider names to adapters. It is populated once at process
// start; lookups after that are read-only.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(provider string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[provider] = a
}

// Resolve returns the adapter registered for the provider.
func (r *Registry) Resolve(provider string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", provider)
	}
	return a, nil
}

// Providers lists registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
