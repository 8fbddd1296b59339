package domain

import "errors"

var (
	// ErrNotAnImage is returned when the probed resource does not declare image content
	ErrNotAnImage = errors.New("resource is not an image")

	// ErrTransferFailed is returned when the probe or download fails at the transport level
	ErrTransferFailed = errors.New("image transfer failed")

	// ErrDecodeFailed is returned when the downloaded bytes cannot be decoded as an image
	ErrDecodeFailed = errors.New("image decode failed")

	// ErrUnsupportedFormat is returned when the source subtype cannot be encoded
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrTooLarge is returned when the image exceeds the byte or pixel limits
	ErrTooLarge = errors.New("image too large")

	// ErrInvalidPayload is returned when the message body cannot be turned into a job
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrUnexpected marks failures nobody anticipated (panics, sink or lock errors)
	ErrUnexpected = errors.New("unexpected processing error")
)
