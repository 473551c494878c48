package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrMalformedPayload) {
//	    // drop the message, keep the loop running
//	}
var (
	// ErrMalformedPayload is returned when a tag-specific payload coercion fails.
	ErrMalformedPayload = errors.New("device: malformed payload")

	// ErrUnknownProtocol is returned when a protocol id is absent from the
	// classification table. Downstream topic routing depends on protocol
	// metadata, so the message is dropped rather than half-applied.
	ErrUnknownProtocol = errors.New("device: unknown protocol")

	// ErrRecordNotFound is returned when a device id has never been seen.
	ErrRecordNotFound = errors.New("device: record not found")
)
