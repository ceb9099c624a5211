package compute

import (
	"context"
	"strings"
	"time"
)

// PowerStatus is the provider-reported power state of the VM. Values outside the
// constants below are provider-specific and pass through opaquely.
type PowerStatus string

const (
	PowerRunning      PowerStatus = "Running"
	PowerDeallocated  PowerStatus = "Deallocated"
	PowerStopped      PowerStatus = "Stopped"
	PowerStarting     PowerStatus = "Starting"
	PowerStopping     PowerStatus = "Stopping"
	PowerDeallocating PowerStatus = "Deallocating"
	PowerUnknown      PowerStatus = "Unknown"
)

// IsRunning reports whether the VM is up.
func (s PowerStatus) IsRunning() bool {
	return s == PowerRunning
}

// Action names a power mutation.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Ack acknowledges a power command. It is handed back to callers untouched.
type Ack struct {
	Provider  string      `json:"provider"`
	MachineID string      `json:"machineID"`
	Action    Action      `json:"action"`
	Status    PowerStatus `json:"status"` // status reported once the command returned
	IssuedAt  time.Time   `json:"issuedAt"`
}

// Infrastructure is the interface for cloud providers hosting the game server VM.
type Infrastructure interface {
	Status(ctx context.Context) (PowerStatus, error)
	Start(ctx context.Context) (*Ack, error)
	Stop(ctx context.Context) (*Ack, error)
}

// titleStatus turns a provider state such as "deallocating" or "powered_off"
// into a PowerStatus ("Deallocating", "Powered_off").
func titleStatus(s string) PowerStatus {
	if s == "" {
		return PowerUnknown
	}
	return PowerStatus(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
}
