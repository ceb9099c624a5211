// Package reconciler decides whether powering the game server VM on or off is
// safe, already satisfied, or a sign that the VM and the game server disagree.
//
// Each call fetches both signals fresh and runs its steps strictly in order.
// Nothing is retried and nothing is shared between calls, so concurrent PowerOn
// and PowerOff calls are not coordinated here.
package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/notify"
	"github.com/opencraft/opencraft/internal/probe"
)

// Reconciler matches VM power state with game server liveness.
type Reconciler struct {
	infra    compute.Infrastructure
	probe    probe.Probe
	notifier notify.Notifier
	logger   *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier makes PowerOff deliver a graceful-stop directive before the
// infrastructure stop.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates a Reconciler.
func New(infra compute.Infrastructure, p probe.Probe, opts ...Option) *Reconciler {
	r := &Reconciler{
		infra:  infra,
		probe:  p,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PowerOn starts the VM unless the game server is already online. The Ack
// returned by the provider is passed through unchanged.
func (r *Reconciler) PowerOn(ctx context.Context) (*compute.Ack, error) {
	status, err := r.infra.Status(ctx)
	if err != nil {
		return nil, wrap(ErrInfrastructure, "get VM status", err)
	}

	info, err := r.probe.Info(ctx)
	if err != nil {
		return nil, wrap(ErrProbeUnavailable, "get server info", err)
	}

	if err := Validate(info, status); err != nil {
		r.logger.Warn("power on refused",
			zap.String("vm_status", string(status)),
			zap.Bool("server_online", isOnline(info)),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Info("starting VM", zap.String("vm_status", string(status)))
	ack, err := r.infra.Start(ctx)
	if err != nil {
		return nil, wrap(ErrInfrastructure, "start VM", err)
	}
	return ack, nil
}

// PowerOff asks the game server to stop (when a notifier is configured) and
// then stops the VM. The probe result is logged but does not gate the stop.
func (r *Reconciler) PowerOff(ctx context.Context) (*compute.Ack, error) {
	if r.notifier != nil {
		if err := r.notifier.SendStopDirective(ctx); err != nil {
			return nil, wrap(ErrNotifier, "send stop directive", err)
		}
		r.logger.Info("stop directive delivered")
	}

	info, err := r.probe.Info(ctx)
	if err != nil {
		return nil, wrap(ErrProbeUnavailable, "get server info", err)
	}
	if isOnline(info) {
		// Expected right after the stop directive: the server needs a few
		// seconds to save the world and exit.
		r.logger.Info("server still reports online before VM stop",
			zap.Int("players", info.Players.Online),
		)
	}

	r.logger.Info("stopping VM")
	ack, err := r.infra.Stop(ctx)
	if err != nil {
		return nil, wrap(ErrInfrastructure, "stop VM", err)
	}
	return ack, nil
}

// Status is a read-only view of both signals.
type Status struct {
	VM         compute.PowerStatus
	Server     *probe.ServerInfo // nil when absent or offline
	Consistent bool
}

// Status fetches both signals without mutating anything. An inconsistent
// combination is reported, not returned as an error.
func (r *Reconciler) Status(ctx context.Context) (*Status, error) {
	status, err := r.infra.Status(ctx)
	if err != nil {
		return nil, wrap(ErrInfrastructure, "get VM status", err)
	}

	info, err := r.probe.Info(ctx)
	if err != nil {
		return nil, wrap(ErrProbeUnavailable, "get server info", err)
	}

	return &Status{
		VM:         status,
		Server:     info,
		Consistent: isOnline(info) || !status.IsRunning(),
	}, nil
}

// Validate applies the power-on policy to the observed signals. The game
// server signal decides redundancy; the VM signal exposes impossible states.
func Validate(info *probe.ServerInfo, status compute.PowerStatus) error {
	if isOnline(info) {
		return ErrAlreadyRunning
	}
	if status.IsRunning() {
		return ErrInconsistentState
	}
	return nil
}

func isOnline(info *probe.ServerInfo) bool {
	return info != nil && info.Online
}
