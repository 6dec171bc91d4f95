package oldgen

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned by Collect when the scheduler is already
// ShuttingDown, and by the mark worker's cycle when the scheduler
// transitions to ShuttingDown mid-cycle (spec.md §7.3); awaitCycle logs
// the latter. It is a recoverable condition, unlike FatalError.
var ErrShuttingDown = errors.New("oldgen: scheduler is shutting down")

// ErrCollectInProgress is returned by Collect when another cycle is
// already active (spec.md §6, "no-op if another cycle is active").
var ErrCollectInProgress = errors.New("oldgen: collection already in progress")

// FatalError represents a programming-error fault or resource
// exhaustion (spec.md §7, modes 1 and 2). The collector never recovers
// from these itself; fatal() logs and panics with a FatalError so a
// test harness can assert on it, but production callers must not catch
// and continue past one.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

// fatal logs msg with the given structured fields at error level and
// panics with a *FatalError. It mirrors the teacher's throw(): the
// collector has no degraded mode for a corrupted invariant.
func fatal(log *zap.Logger, msg string, fields ...zap.Field) {
	if log != nil {
		log.Error(msg, fields...)
	}
	panic(&FatalError{msg: msg})
}

// fatalf is fatal with fmt-style formatting and no structured fields,
// for the handful of call sites where a field list would be noise.
func fatalf(log *zap.Logger, format string, args ...any) {
	fatal(log, fmt.Sprintf(format, args...))
}
