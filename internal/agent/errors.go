package agent

import "errors"

// Device-call errors.
//
// These form the agent-layer taxonomy. The directive handler translates
// them into protocol error responses at its boundary; they never leak to
// the voice platform as raw transport failures.
var (
	// ErrBadAddress is returned when a device's control address is not a
	// well-formed URL. Non-retryable.
	ErrBadAddress = errors.New("agent: bad control address")

	// ErrCredential is returned when the outbound credential cannot be
	// minted. Fatal for the call; retryable after a key rotation check.
	ErrCredential = errors.New("agent: credential error")

	// ErrUnreachable is returned on connection failure or when the agent
	// does not respond within the call timeout. The dispatcher never
	// retries; callers needing resilience must re-invoke.
	ErrUnreachable = errors.New("agent: device unreachable")

	// ErrMalformedAck is returned when the agent's acknowledgement body
	// cannot be decoded. Non-retryable.
	ErrMalformedAck = errors.New("agent: malformed acknowledgement")
)
