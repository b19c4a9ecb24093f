package diagnostics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes step events to a NATS subject so external monitors can
// follow runs live.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("ticketpilot-diagnostics"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = "ticketpilot.events.steps"
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

func (s *NATSSink) Publish(ctx context.Context, evt StepEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

func (s *NATSSink) Close() {
	s.nc.Close()
}
