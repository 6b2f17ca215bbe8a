package control

import (
	"errors"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
)

// Stable error codes reported to REST and MQTT clients.
const (
	CodeDeviceNotFound    = "device_not_found"
	CodeInvalidIntent     = "invalid_intent"
	CodeAuthFailed        = "auth_failed"
	CodeVendorUnreachable = "vendor_unreachable"
	CodeVendorError       = "vendor_error"
)

// ErrorCode classifies an error returned by Apply.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return CodeDeviceNotFound
	case errors.Is(err, ErrEmptyIntent), errors.Is(err, ErrInvalidIntent):
		return CodeInvalidIntent
	case errors.Is(err, aircloud.ErrAuthentication):
		return CodeAuthFailed
	case errors.Is(err, aircloud.ErrCommunication):
		return CodeVendorUnreachable
	default:
		return CodeVendorError
	}
}
