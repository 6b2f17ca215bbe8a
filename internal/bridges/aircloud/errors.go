package aircloud

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrMissingDependency is returned by NewBridge when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("bridge: missing dependency")

	// ErrInvalidCommand is returned for command payloads that are not a
	// JSON object.
	ErrInvalidCommand = errors.New("bridge: invalid command payload")
)

// CodeInvalidPayload is the ack error code for undecodable commands.
const CodeInvalidPayload = "invalid_payload"
