// Package directive implements the inbound smart-home protocol surface:
// envelope parsing, operation dispatch and response rendering for
// discovery, power control and state report requests.
//
// The handler composes the account resolver, the device directory and the
// action dispatcher. Its contract is that every inbound envelope, however
// malformed, terminates in a protocol-compliant response: success, a typed
// ErrorResponse, or (for discovery only) a degraded empty-endpoint list.
package directive
