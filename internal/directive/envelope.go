package directive

import (
	"time"

	"github.com/google/uuid"
)

// payloadVersion is the smart-home protocol version this bridge speaks.
const payloadVersion = "3"

// Request is the inbound directive envelope.
type Request struct {
	Directive Directive `json:"directive"`
}

// Directive carries the header, payload scope and optional endpoint of an
// inbound request.
type Directive struct {
	Header   Header    `json:"header"`
	Payload  Payload   `json:"payload"`
	Endpoint *Endpoint `json:"endpoint,omitempty"`
}

// Header identifies the operation and correlates request and response.
type Header struct {
	Namespace        string `json:"namespace"`
	Name             string `json:"name"`
	PayloadVersion   string `json:"payloadVersion"`
	MessageID        string `json:"messageId"`
	CorrelationToken string `json:"correlationToken,omitempty"`
}

// Scope carries the bearer token identifying the requesting account.
type Scope struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Payload is the directive payload. Discovery carries its scope here
// rather than on an endpoint.
type Payload struct {
	Scope *Scope `json:"scope,omitempty"`
}

// Endpoint addresses the target device of a control or state request.
type Endpoint struct {
	Scope      Scope             `json:"scope"`
	EndpointID string            `json:"endpointId"`
	Cookie     map[string]string `json:"cookie,omitempty"`
}

// Response is the outbound envelope: an event and, for control and state
// responses, a context of reported properties.
type Response struct {
	Event   Event    `json:"event"`
	Context *Context `json:"context,omitempty"`
}

// Event is the outbound event block.
type Event struct {
	Header   Header            `json:"header"`
	Endpoint *ResponseEndpoint `json:"endpoint,omitempty"`
	Payload  any               `json:"payload"`
}

// ResponseEndpoint echoes the target device on an outbound event.
type ResponseEndpoint struct {
	Scope      *Scope `json:"scope,omitempty"`
	EndpointID string `json:"endpointId"`
}

// Context carries the reported property set on control and state responses.
type Context struct {
	Properties []Property `json:"properties"`
}

// Property is a single reported device property with its staleness estimate.
type Property struct {
	Namespace                 string `json:"namespace"`
	Name                      string `json:"name"`
	Value                     any    `json:"value"`
	TimeOfSample              string `json:"timeOfSample"`
	UncertaintyInMilliseconds int64  `json:"uncertaintyInMilliseconds"`
}

// emptyPayload is the payload of events that carry everything in context.
type emptyPayload struct{}

// errorPayload is the payload of an ErrorResponse event.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// discoveryPayload lists the endpoints reported by a discovery response.
type discoveryPayload struct {
	Endpoints []DiscoveredEndpoint `json:"endpoints"`
}

// DiscoveredEndpoint is one device as reported to the voice platform.
type DiscoveredEndpoint struct {
	EndpointID        string            `json:"endpointId"`
	ManufacturerName  string            `json:"manufacturerName"`
	Description       string            `json:"description"`
	FriendlyName      string            `json:"friendlyName"`
	DisplayCategories []string          `json:"displayCategories"`
	Cookie            map[string]string `json:"cookie"`
	Capabilities      []Capability      `json:"capabilities"`
}

// Capability declares one controllable interface of a discovered endpoint.
type Capability struct {
	Type       string                `json:"type"`
	Interface  string                `json:"interface"`
	Version    string                `json:"version"`
	Properties *CapabilityProperties `json:"properties,omitempty"`
}

// CapabilityProperties lists the reportable properties of a capability.
type CapabilityProperties struct {
	Supported           []SupportedProperty `json:"supported"`
	ProactivelyReported bool                `json:"proactivelyReported"`
	Retrievable         bool                `json:"retrievable"`
}

// SupportedProperty names one reportable property.
type SupportedProperty struct {
	Name string `json:"name"`
}

// responseHeader derives an outbound header from the inbound one,
// preserving the correlation token and minting a fresh message id.
func responseHeader(in Header, namespace, name string) Header {
	return Header{
		Namespace:        namespace,
		Name:             name,
		PayloadVersion:   payloadVersion,
		MessageID:        uuid.NewString(),
		CorrelationToken: in.CorrelationToken,
	}
}

// sampleTime renders a property timestamp in the protocol's wire form.
func sampleTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.00Z")
}
