package automation

import (
	"context"
	"fmt"

	"ticketpilot/config"
	"ticketpilot/diagnostics"
	"ticketpilot/ticket"
)

// FallbackOrchestrator hands an intent to the provider's API adapter when
// the UI path is abandoned. Exactly one delegation per run; the adapter
// result is final.
type FallbackOrchestrator struct {
	Registry *ticket.Registry
	Recorder *diagnostics.Recorder
}

// Delegate resolves the adapter for the provider (explicit adapter name
// first, provider name otherwise) and creates the ticket through it.
func (o *FallbackOrchestrator) Delegate(ctx context.Context, cfg *config.ProviderConfig, intent *ticket.Intent) (*ticket.AdapterResult, error) {
	name := cfg.Adapter
	if name == "" {
		name = cfg.Name
	}

	adapter, err := o.Registry.Resolve(name)
	if err != nil {
		o.record("fallback_unavailable", map[string]interface{}{"adapter": name})
		return nil, &AdapterError{Provider: name, Err: err}
	}

	o.record("fallback_invoked", map[string]interface{}{"adapter": name})
	res, err := adapter.CreateTicket(ctx, intent)
	if err != nil {
		o.record("fallback_failed", map[string]interface{}{"adapter": name, "error": truncate(err.Error(), 400)})
		return nil, &AdapterError{Provider: name, Err: err}
	}
	if res.Status != "ok" {
		o.record("fallback_failed", map[string]interface{}{"adapter": name, "status": res.Status, "code": res.Code})
		return res, &AdapterError{Provider: name, Err: fmt.Errorf("adapter returned status %q (http %d)", res.Status, res.Code)}
	}

	o.record("fallback_succeeded", map[string]interface{}{"adapter": name, "ticket_id": res.TicketID})
	return res, nil
}

func (o *FallbackOrchestrator) record(event string, step map[string]interface{}) {
	if o.Recorder != nil {
		o.Recorder.Record(event, step, nil)
	}
}
