package device

import "fmt"

// DeviceError is a coded device-management error, surfaced to API
// clients with the code intact.
type DeviceError struct {
	Code    string
	Message string
	Cause   error
}

func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeDeviceNotFound = "DEVICE_NOT_FOUND"
	ErrCodeDeviceIgnored  = "DEVICE_IGNORED"
	ErrCodeTransport      = "TRANSPORT_ERROR"
)

// NewDeviceError creates a coded device error.
func NewDeviceError(code, message string, cause error) *DeviceError {
	return &DeviceError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
