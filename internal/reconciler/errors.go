package reconciler

import (
	"errors"
	"fmt"
)

// Error kinds returned by PowerOn and PowerOff. Collaborator failures are wrapped
// with both the kind and the underlying cause, so errors.Is matches either.
var (
	// ErrProbeUnavailable means the liveness probe could not be queried.
	// No mutation was attempted; the whole operation may be retried later.
	ErrProbeUnavailable = errors.New("liveness probe unavailable")

	// ErrInfrastructure means a cloud provider query or power command failed.
	ErrInfrastructure = errors.New("infrastructure error")

	// ErrAlreadyRunning is a refusal, not an execution failure: the game server
	// is already online, so there is nothing to power on.
	ErrAlreadyRunning = errors.New("the server is already up and running")

	// ErrInconsistentState means the server appears down while the VM reports
	// Running. It indicates drift between layers and should not be retried blindly.
	ErrInconsistentState = errors.New("internal error: the server appears to be down but the virtual machine appears to be running")

	// ErrNotifier means the graceful-stop directive could not be delivered.
	// PowerOff aborts before touching the infrastructure.
	ErrNotifier = errors.New("could not deliver stop directive")
)

func wrap(kind error, op string, err error) error {
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

// Kind returns the error kind err belongs to, or nil when err is not one of
// the reconciler's error kinds.
func Kind(err error) error {
	for _, kind := range []error{
		ErrAlreadyRunning,
		ErrInconsistentState,
		ErrProbeUnavailable,
		ErrNotifier,
		ErrInfrastructure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
