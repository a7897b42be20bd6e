package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Builtins carries what the built-in middleware share at runtime.
type Builtins struct {
	Logger *zap.Logger

	// Registerer receives the chain metrics. Nil leaves the metrics
	// middleware unregistered.
	Registerer prometheus.Registerer

	// RateLimitStore is shared by every rateLimit instance. Nil creates one
	// with one-minute cleanup.
	RateLimitStore *RateLimitStore
}

// RegisterBuiltins installs the descriptors of the built-in middleware in
// reg: recovery, metrics, requestId, logger, cors, rateLimit and auth.
func RegisterBuiltins(reg *Registry, b Builtins) error {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := b.RateLimitStore
	if store == nil {
		store = NewRateLimitStore(time.Minute, log)
	}

	descriptors := []Descriptor{
		newRecoveryDescriptor(log),
		newRequestIDDescriptor(),
		newLoggerDescriptor(log),
		newCORSDescriptor(),
		newRateLimitDescriptor(store),
		newAuthDescriptor(),
	}
	if b.Registerer != nil {
		descriptors = append(descriptors, newMetricsDescriptor(NewChainMetrics(b.Registerer)))
	}

	var errs []error
	for _, d := range descriptors {
		errs = append(errs, reg.Register(d))
	}
	return errors.Join(errs...)
}
