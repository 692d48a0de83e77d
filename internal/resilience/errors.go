package resilience

import (
	"context"
	"errors"
	"net"
)

// transienter is implemented by errors that know their own retryability.
// provider.Error implements it via its kind classification.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether the error (or any error in its chain) is safe
// to retry: it self-reports as transient, is a network timeout, or is a
// context deadline (the per-attempt timeout, not caller cancellation).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var tr transienter
	if errors.As(err, &tr) {
		return tr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
