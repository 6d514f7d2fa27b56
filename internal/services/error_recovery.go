package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// PanicError carries a panic recovered at an iteration boundary.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// recoverInto turns a panic in the calling function into a *PanicError stored
// in errp. It must be deferred directly.
func recoverInto(logger *logrus.Logger, component string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	panicErr := &PanicError{Value: r, Stack: debug.Stack()}
	logger.WithFields(logrus.Fields{
		"component": component,
		"panic":     fmt.Sprint(r),
		"stack":     string(panicErr.Stack),
	}).Error("Recovered from panic")
	*errp = panicErr
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
