package core

import (
	"github.com/cockroachdb/errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")

	// ErrFatal marks failures after which the device state is undefined.
	// Nothing in the engine tries to recover from them.
	ErrFatal = errors.New("fatal renderer failure")

	// ErrContractViolation marks misuse of an engine API, such as a
	// reentrant immediate submit or a push while a queue is flushing.
	ErrContractViolation = errors.New("contract violation")
)

// Fatal wraps err with the name of the failing operation and marks it as
// unrecoverable. A nil err stays nil.
func Fatal(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFatal) {
		return err
	}
	return errors.Mark(errors.Wrapf(err, "%s", op), ErrFatal)
}

// Fatalf builds a new unrecoverable error.
func Fatalf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrFatal)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ContractViolation builds an error for API misuse.
func ContractViolation(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrContractViolation)
}
