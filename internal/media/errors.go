package media

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrUnsupported      = errors.New("capture not supported on this platform")
	ErrNoConstraints    = errors.New("neither audio nor video requested")
)

// AccessError reports that the platform denied or lacks a requested device.
type AccessError struct {
	Device string
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s access: %v", e.Device, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// IsAccessError reports whether err is (or wraps) an *AccessError.
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

// DeviceLabel names the devices c asks for, for error messages.
func DeviceLabel(c Constraints) string {
	switch {
	case c.Audio && c.Video:
		return "camera and microphone"
	case c.Video:
		return "camera"
	case c.Audio:
		return "microphone"
	default:
		return "media"
	}
}
