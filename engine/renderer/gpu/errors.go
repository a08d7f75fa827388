package gpu

import "github.com/cockroachdb/errors"

// Device results the core reacts to. Backends map native codes onto these
// so callers can use errors.Is.
var (
	ErrOutOfDate          = errors.New("surface out of date")
	ErrSuboptimal         = errors.New("swapchain suboptimal")
	ErrTimeout            = errors.New("timeout expired")
	ErrNotReady           = errors.New("not ready")
	ErrDeviceLost         = errors.New("device lost")
	ErrSurfaceLost        = errors.New("surface lost")
	ErrOutOfPoolMemory    = errors.New("descriptor pool out of memory")
	ErrFragmentedPool     = errors.New("descriptor pool fragmented")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrOutOfHostMemory    = errors.New("out of host memory")
	ErrInitializationFail = errors.New("initialization failed")
)

// IsPoolExhausted reports the errors after which a descriptor allocation
// may be retried from a fresh pool.
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrOutOfPoolMemory) || errors.Is(err, ErrFragmentedPool)
}
