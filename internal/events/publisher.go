// Package events publishes power operation outcomes to NATS for dashboards and
// chat bots. Events are fire-and-forget; nothing here stores them.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// PowerEvent is the JSON payload published for every power operation.
type PowerEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`  // "power_on", "power_off"
	Outcome   string    `json:"outcome"` // "ok" or an error kind
	Error     string    `json:"error,omitempty"`
	MachineID string    `json:"machineID,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives power events.
type Sink interface {
	Publish(ev PowerEvent)
}

// Publisher publishes power events on "<subject>.<action>".
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewPublisher connects to NATS.
func NewPublisher(natsURL, subject string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("opencraft-events"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends ev. Failures are logged and otherwise ignored.
func (p *Publisher) Publish(ev PowerEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal power event", zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.subject+"."+ev.Action, data); err != nil {
		p.logger.Warn("publish power event", zap.String("action", ev.Action), zap.Error(err))
	}
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
