package async

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/foundry/pkg/observability"
)

// SafeGo runs fn in a goroutine with panic recovery.
// Use it for background loops that stop when ctx is canceled.
//
// Example:
//
//	SafeGo(ctx, logger, "replica health check", func(ctx context.Context) {
//	    for { ... }
//	})
func SafeGo(ctx context.Context, logger *observability.Logger, taskName string, fn func(context.Context)) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	go func() {
		defer observability.RecoverPanic(logger, taskName)
		fn(ctx)
	}()
}

// SafeGoTimeout runs a bounded task in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// The task context is detached from the parent's cancellation, so work
// started at the end of a request survives the request finishing, but it
// keeps the parent's values.
//
// Example:
//
//	SafeGoTimeout(r.Context(), logger, 5*time.Second, "audit write", func(ctx context.Context) error {
//	    return auditLogger.Log(ctx, event)
//	})
func SafeGoTimeout(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// Recover converts a panic into an error. Call it as `defer async.Recover(&err)`.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
