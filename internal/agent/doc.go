// Package agent dispatches authenticated commands to fireplace device
// agents and reconciles persisted device state with their acknowledgements.
//
// A device agent is the remote HTTP service embedded with or near the
// physical fireplace. The bridge talks to it with exactly one call per
// dispatch: POST {controlAddress}/directive carrying a short-lived signed
// credential and a body of {"name": "TurnOn"|"TurnOff"|"Update"}.
//
// Failures form their own taxonomy (ErrBadAddress, ErrCredential,
// ErrUnreachable, ErrMalformedAck); the directive handler translates them
// into protocol error responses at its boundary.
//
// The signer and status store are injected at construction. There are no
// package-level keys or clients.
package agent
