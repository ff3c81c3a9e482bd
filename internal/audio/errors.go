// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
)

var (
	ErrNoInputDevice     = errors.New("no input device available")
	ErrInvalidDevice     = errors.New("invalid input device")
	ErrUnsupportedConfig = errors.New("unsupported stream configuration")
)

// DeviceError describes a capture device that could not be opened or
// configured. It is fatal at startup.
type DeviceError struct {
	Op     string // Operation that failed, e.g. "open stream".
	Device string // Device name, if one was resolved.
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audio: %s %q: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
