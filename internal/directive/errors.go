package directive

// Error types rendered in ErrorResponse payloads. These are the protocol
// handler's own taxonomy; failures from the account and agent layers are
// translated into it at this boundary and never leak through raw.
const (
	// ErrTypeInvalidDirective covers undecodable envelopes and
	// unrecognized operation names.
	ErrTypeInvalidDirective = "INVALID_DIRECTIVE"

	// ErrTypeNoSuchEndpoint covers missing devices and devices not
	// linked to the resolved account. An existing but unlinked device
	// is reported as missing so one account can never probe another's.
	ErrTypeNoSuchEndpoint = "NO_SUCH_ENDPOINT"

	// ErrTypeEndpointUnreachable covers transport failures, timeouts,
	// and agents that answered without fresh state.
	ErrTypeEndpointUnreachable = "ENDPOINT_UNREACHABLE"

	// ErrTypeNotInOperation covers agents that rejected the action.
	ErrTypeNotInOperation = "NOT_IN_OPERATION"
)
