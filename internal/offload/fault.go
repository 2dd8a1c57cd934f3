package offload

import (
	"errors"
	"fmt"
)

// Status is a backend diagnostic code. Values follow the OpenCL status
// numbering that accelerator runtimes commonly report.
type Status int

const (
	StatusSuccess           Status = 0
	StatusDeviceNotFound    Status = -1
	StatusOutOfResources    Status = -5
	StatusOutOfHostMemory   Status = -6
	StatusInvalidValue      Status = -30
	StatusInvalidDevice     Status = -33
	StatusInvalidOperation  Status = -59
	StatusInvalidBufferSize Status = -61
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusDeviceNotFound:
		return "DEVICE_NOT_FOUND"
	case StatusOutOfResources:
		return "OUT_OF_RESOURCES"
	case StatusOutOfHostMemory:
		return "OUT_OF_HOST_MEMORY"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusInvalidDevice:
		return "INVALID_DEVICE"
	case StatusInvalidOperation:
		return "INVALID_OPERATION"
	case StatusInvalidBufferSize:
		return "INVALID_BUFFER_SIZE"
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Fault is an error reported by a backend.
type Fault struct {
	Status  Status
	Op      string
	Message string
	// Async is set for faults raised by queued work rather than returned
	// from the submitting call.
	Async bool
}

func (f *Fault) Error() string {
	kind := "fault"
	if f.Async {
		kind = "async fault"
	}
	return fmt.Sprintf("offload %s: %s: %s (status %d %s)", kind, f.Op, f.Message, int(f.Status), f.Status)
}

// AsFault unwraps err to a *Fault.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// FaultHandler receives the asynchronous faults collected since the last
// queue synchronization. It is called on the goroutine that waits.
type FaultHandler func(faults []*Fault)

// ErrAsyncFault is returned by Dispatch when the queue delivered at least one
// asynchronous fault to a handler that did not terminate the process.
var ErrAsyncFault = errors.New("offload: asynchronous fault during dispatch")
