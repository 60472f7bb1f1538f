package core

import (
	"context"
	"fmt"
)

// MediaStream is an opaque handle to the captured microphone stream.
// It is exclusively owned by one connection and released on teardown.
type MediaStream interface {
	Close()
}

// MediaDevice acquires the local microphone. Capture may block
// indefinitely waiting for user permission, so callers must treat it as
// asynchronous and honor ctx.
type MediaDevice interface {
	Capture(ctx context.Context) (MediaStream, error)
}

type CaptureReason string

const (
	CapturePermissionDenied  CaptureReason = "permission-denied"
	CaptureDeviceUnavailable CaptureReason = "device-unavailable"
	CaptureDeviceBusy        CaptureReason = "device-busy"
	CaptureNotFound          CaptureReason = "not-found"
)

// CaptureError is a typed media failure. It is terminal for the capture
// attempt; the participant continues listen-only.
type CaptureError struct {
	Reason CaptureReason
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("media capture: %s", e.Reason)
	}
	return fmt.Sprintf("media capture: %s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
