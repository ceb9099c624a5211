package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConsoleRequest is sent to the console sidecar running next to the server.
type ConsoleRequest struct {
	Command string    `json:"command"`
	SentAt  time.Time `json:"sentAt"`
}

// ConsoleReply is the sidecar's answer. An empty Error means the command ran.
type ConsoleReply struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NATS sends the stop command to a console sidecar over NATS request/reply.
// A missing responder is a failure, so the stop is never fire-and-forget.
type NATS struct {
	nc      *nats.Conn
	subject string
	command string
}

// NewNATS connects to NATS and returns a console notifier publishing on subject.
func NewNATS(natsURL, subject, command string) (*NATS, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("opencraft-notifier"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSConn(nc, subject, command), nil
}

// NewNATSConn wraps an existing connection.
func NewNATSConn(nc *nats.Conn, subject, command string) *NATS {
	if command == "" {
		command = DefaultStopCommand
	}
	return &NATS{nc: nc, subject: subject, command: command}
}

func (n *NATS) SendStopDirective(ctx context.Context) error {
	data, err := json.Marshal(ConsoleRequest{Command: n.command, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("nats: marshal request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	msg, err := n.nc.RequestWithContext(ctx, n.subject, data)
	if err != nil {
		return fmt.Errorf("nats: console request on %s failed: %w", n.subject, err)
	}

	var reply ConsoleReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("nats: decode console reply: %w", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("nats: console rejected command: %s", reply.Error)
	}
	return nil
}

// Close drains the underlying connection.
func (n *NATS) Close() {
	n.nc.Close()
}
