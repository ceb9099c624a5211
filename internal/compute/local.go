package compute

import (
	"context"
	"sync"
	"time"
)

// LocalVM is an in-memory machine for development. It flips between Running
// and Deallocated instantly.
type LocalVM struct {
	mu     sync.Mutex
	id     string
	status PowerStatus
}

// NewLocalVM creates a local machine in the given initial state.
func NewLocalVM(id string, initial PowerStatus) *LocalVM {
	if initial == "" {
		initial = PowerDeallocated
	}
	return &LocalVM{id: id, status: initial}
}

func (v *LocalVM) Status(_ context.Context) (PowerStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status, nil
}

func (v *LocalVM) Start(_ context.Context) (*Ack, error) {
	return v.set(ActionStart, PowerRunning), nil
}

func (v *LocalVM) Stop(_ context.Context) (*Ack, error) {
	return v.set(ActionStop, PowerDeallocated), nil
}

func (v *LocalVM) set(action Action, status PowerStatus) *Ack {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = status
	return &Ack{
		Provider:  "local",
		MachineID: v.id,
		Action:    action,
		Status:    status,
		IssuedAt:  time.Now().UTC(),
	}
}
