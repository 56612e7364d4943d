// Package localmedia owns the local capture devices for a call. The
// manager is the single owner of the microphone and camera; adapters
// receive streams from it and never touch devices directly, so device
// lifetime is decoupled from channel reconnects.
package localmedia

import (
	"errors"
	"fmt"
)

// Facing identifies which camera a stream comes from.
type Facing int

const (
	FacingFront Facing = iota
	FacingBack
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return fmt.Sprintf("Facing(%d)", int(f))
	}
}

// Opposite returns the other facing.
func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Microphone is an open capture stream of 16-bit mono PCM frames.
type Microphone interface {
	// Frames yields capture frames. The channel closes on Close.
	Frames() <-chan []byte

	// SampleRate of the produced frames.
	SampleRate() int

	// Close releases the device. Safe to call twice.
	Close() error
}

// CameraStream is an open camera capture handle. Frame delivery is the
// view layer's concern; the core only tracks ownership and facing.
type CameraStream interface {
	Facing() Facing
	Close() error
}

// DeviceProvider opens concrete capture devices. The OS capture
// backends live behind this seam so the call core stays testable and
// portable.
type DeviceProvider interface {
	OpenMicrophone(sampleRate, frameMs int) (Microphone, error)
	OpenCamera(facing Facing) (CameraStream, error)
}

// ErrCameraUnsupported is returned by providers that have no camera
// backend wired in.
var ErrCameraUnsupported = errors.New("camera capture not supported by this provider")
