package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is matched by every encoding rejection.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMalformedResponse marks a reply that is not a structured payload.
	ErrMalformedResponse = errors.New("malformed response")
)

// InvalidArgumentError reports why a command could not be encoded.
type InvalidArgumentError struct {
	Command Command
	Arg     string
	Reason  string
}

func (e *InvalidArgumentError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}

	return fmt.Sprintf("%s: argument %q: %s", e.Command, e.Arg, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// DeviceError is an explicit {"status":"error"} reply from the device.
type DeviceError struct {
	Command Command
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: device reported error", e.Command)
	}

	return fmt.Sprintf("%s: device reported error: %s", e.Command, e.Message)
}
