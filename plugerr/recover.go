package plugerr

import (
	"errors"
	"fmt"
)

// PanicError is the value recovered from a panic inside plugin code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover converts a panic in the calling goroutine into an error stored in
// *errp. It must be deferred directly:
//
//	defer plugerr.Recover(&err, func(p error) error {
//	    return &ExecutionError{Function: name, Err: p}
//	})
//
// wrap receives the *PanicError and returns the error to report.
func Recover(errp *error, wrap func(error) error) {
	r := recover()
	if r == nil {
		return
	}
	var p error = &PanicError{Value: r}
	if err, ok := r.(error); ok {
		p = fmt.Errorf("panic: %w", err)
	}
	if wrap != nil {
		p = wrap(p)
	}
	*errp = p
}

// IsCallerError reports whether err is a caller-contract violation at
// dispatch time, after which plugin state is unchanged.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnknownFunctionID) ||
		errors.Is(err, ErrArityMismatch) ||
		errors.Is(err, ErrTypeMismatch)
}
