package alerting

import (
	"errors"
	"time"

	"github.com/kozaktomas/faceguard/internal/storage"
)

// ErrAlreadyResolved marks an attempt to acknowledge a resolved instance.
// No transition leaves the resolved state.
var ErrAlreadyResolved = errors.New("alerting: instance already resolved")

// acknowledgeInstance applies triggered -> acknowledged. Acknowledging an
// already-acknowledged instance is a no-op, not an error; the caller gets the
// existing state back.
func acknowledgeInstance(instance *storage.AlertInstance, now time.Time) (bool, error) {
	switch instance.Status {
	case storage.StatusAcknowledged:
		return false, nil
	case storage.StatusResolved:
		return false, ErrAlreadyResolved
	}
	instance.Status = storage.StatusAcknowledged
	instance.AcknowledgedAt = &now
	return true, nil
}

// resolveInstance applies triggered -> resolved or acknowledged -> resolved.
// Resolving a resolved instance is a no-op.
func resolveInstance(instance *storage.AlertInstance, now time.Time) bool {
	if instance.Status == storage.StatusResolved {
		return false
	}
	instance.Status = storage.StatusResolved
	instance.ResolvedAt = &now
	return true
}
