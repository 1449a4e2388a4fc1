package directive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emberfield/hearth-bridge/internal/account"
	"github.com/emberfield/hearth-bridge/internal/agent"
	"github.com/emberfield/hearth-bridge/internal/audit"
	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

// Endpoint metadata reported on every discovered device.
const (
	manufacturerName    = "Emberfield"
	endpointDescription = "Emberfield network-connected fireplace"
)

// AccountResolver maps a bearer token to the account it belongs to.
type AccountResolver interface {
	Resolve(ctx context.Context, token string) (*account.Account, error)
}

// DeviceDirectory is the slice of the device directory the handler reads.
type DeviceDirectory interface {
	Find(ctx context.Context, id string) (*device.Device, error)
	DevicesFor(ctx context.Context, accountID string) ([]device.Device, error)
	IsLinked(ctx context.Context, accountID, deviceID string) (bool, error)
}

// Executor dispatches an action to a device's agent.
type Executor interface {
	Execute(ctx context.Context, action agent.Action, dev *device.Device) (*agent.AckStatus, error)
}

// Handler processes inbound directive envelopes.
//
// Every reachable path terminates in a renderable envelope: either a
// success response or a typed ErrorResponse. Failures from the account
// and agent layers are translated into the directive error taxonomy
// here and never surface as bare transport errors.
//
// Thread Safety: stateless across requests; safe for concurrent use.
type Handler struct {
	resolver  AccountResolver
	directory DeviceDirectory
	executor  Executor
	logger    *logging.Logger
	audit     audit.Repository
	now       func() time.Time
}

// NewHandler creates a directive handler.
func NewHandler(resolver AccountResolver, directory DeviceDirectory, executor Executor, logger *logging.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		directory: directory,
		executor:  executor,
		logger:    logger,
		now:       time.Now,
	}
}

// SetAudit enables command-audit recording. Optional; without it,
// dispatched actions are not journalled.
func (h *Handler) SetAudit(rep audit.Repository) {
	h.audit = rep
}

// recordAudit journals one dispatched action. Auditing is best-effort:
// a write failure is logged and the response is unaffected.
func (h *Handler) recordAudit(ctx context.Context, action agent.Action, deviceID, accountID, outcome, detail string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(ctx, &audit.Entry{
		Action:    string(action),
		DeviceID:  deviceID,
		AccountID: accountID,
		Outcome:   outcome,
		Detail:    detail,
	})
	if err != nil {
		h.logger.Error("recording command audit failed", "device_id", deviceID, "error", err)
	}
}

// Handle decodes and dispatches one directive envelope. It always
// returns a response; it never returns an error.
func (h *Handler) Handle(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logger.Warn("undecodable directive envelope", "error", err)
		return h.errorResponse(Header{}, nil, ErrTypeInvalidDirective, "directive envelope could not be decoded")
	}

	hdr := req.Directive.Header

	switch {
	case hdr.Namespace == "Alexa.Discovery" && hdr.Name == "Discover":
		return h.discover(ctx, &req)
	case hdr.Namespace == "Alexa.PowerController":
		return h.control(ctx, &req)
	case hdr.Namespace == "Alexa" && hdr.Name == "ReportState":
		return h.stateReport(ctx, &req)
	default:
		h.logger.Warn("unsupported directive",
			"namespace", hdr.Namespace,
			"name", hdr.Name,
		)
		return h.errorResponse(hdr, req.Directive.Endpoint, ErrTypeInvalidDirective,
			"unsupported directive "+hdr.Namespace+"."+hdr.Name)
	}
}

// discover lists the resolved account's devices as endpoint descriptors.
//
// Discovery is deliberately asymmetric with control: the protocol expects
// a discovery response envelope even on failure, so an unresolvable token
// degrades to an empty endpoint list rather than an error.
func (h *Handler) discover(ctx context.Context, req *Request) *Response {
	endpoints := []DiscoveredEndpoint{}

	var token string
	if req.Directive.Payload.Scope != nil {
		token = req.Directive.Payload.Scope.Token
	}

	acct, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		h.logger.Warn("discovery account resolution failed", "error", err)
		return h.discoveryResponse(req.Directive.Header, endpoints)
	}

	devices, err := h.directory.DevicesFor(ctx, acct.ID)
	if err != nil {
		h.logger.Error("discovery device listing failed", "account_id", acct.ID, "error", err)
		return h.discoveryResponse(req.Directive.Header, endpoints)
	}

	for i := range devices {
		endpoints = append(endpoints, describeEndpoint(&devices[i]))
	}

	h.logger.Info("discovery completed", "account_id", acct.ID, "endpoints", len(endpoints))
	return h.discoveryResponse(req.Directive.Header, endpoints)
}

// control authorizes and dispatches a power action against one device.
func (h *Handler) control(ctx context.Context, req *Request) *Response {
	hdr := req.Directive.Header
	ep := req.Directive.Endpoint

	action, ok := powerAction(hdr.Name)
	if !ok {
		return h.errorResponse(hdr, ep, ErrTypeInvalidDirective, "unknown power action "+hdr.Name)
	}
	if ep == nil || ep.EndpointID == "" {
		return h.errorResponse(hdr, ep, ErrTypeInvalidDirective, "missing endpoint")
	}

	// Account and device resolution are independent; run them
	// concurrently so latency is the slower of the two, not the sum.
	var acct *account.Account
	var dev *device.Device

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := h.resolver.Resolve(gctx, ep.Scope.Token)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	g.Go(func() error {
		d, err := h.directory.Find(gctx, ep.EndpointID)
		if err != nil {
			return err
		}
		dev = d
		return nil
	})

	if err := g.Wait(); err != nil {
		h.logger.Warn("control resolution failed", "endpoint_id", ep.EndpointID, "error", err)
		return h.errorResponse(hdr, ep, ErrTypeNoSuchEndpoint, err.Error())
	}

	linked, err := h.directory.IsLinked(ctx, acct.ID, dev.ID)
	if err != nil || !linked {
		// An existing but unlinked device is reported exactly like a
		// missing one, never with its real state.
		h.logger.Warn("control ownership check failed",
			"account_id", acct.ID,
			"device_id", dev.ID,
			"linked", linked,
			"error", err,
		)
		return h.errorResponse(hdr, ep, ErrTypeNoSuchEndpoint, "no such endpoint "+ep.EndpointID)
	}

	status, err := h.executor.Execute(ctx, action, dev)
	if err != nil {
		h.recordAudit(ctx, action, dev.ID, acct.ID, "error", err.Error())
		return h.agentErrorResponse(hdr, ep, err)
	}
	h.recordAudit(ctx, action, dev.ID, acct.ID, string(status.Ack), "")

	switch status.Ack {
	case agent.AckOn, agent.AckOff:
		return h.controlResponse(hdr, ep, status)
	case agent.AckUpdating, agent.AckNotAvailable:
		return h.errorResponse(hdr, ep, ErrTypeEndpointUnreachable,
			"device is not available for control right now")
	default:
		// The agent answered but rejected the action.
		return h.errorResponse(hdr, ep, ErrTypeNotInOperation,
			"device rejected the requested action")
	}
}

// stateReport fetches a fresh status snapshot for one device.
func (h *Handler) stateReport(ctx context.Context, req *Request) *Response {
	hdr := req.Directive.Header
	ep := req.Directive.Endpoint

	if ep == nil || ep.EndpointID == "" {
		return h.errorResponse(hdr, ep, ErrTypeInvalidDirective, "missing endpoint")
	}

	dev, err := h.directory.Find(ctx, ep.EndpointID)
	if err != nil {
		return h.errorResponse(hdr, ep, ErrTypeNoSuchEndpoint, "no such endpoint "+ep.EndpointID)
	}

	status, err := h.executor.Execute(ctx, agent.ActionUpdate, dev)
	if err != nil {
		h.recordAudit(ctx, agent.ActionUpdate, dev.ID, "", "error", err.Error())
		h.logger.Warn("state refresh failed", "device_id", dev.ID, "error", err)
		return h.unavailableStateReport(hdr, ep, dev)
	}
	h.recordAudit(ctx, agent.ActionUpdate, dev.ID, "", string(status.Ack), "")
	if !status.Accepted() {
		// An unresponsive device still gets a state report, with the
		// health property marking it unreachable.
		return h.unavailableStateReport(hdr, ep, dev)
	}

	now := h.now()
	return &Response{
		Event: Event{
			Header:   responseHeader(hdr, "Alexa", "StateReport"),
			Endpoint: &ResponseEndpoint{EndpointID: ep.EndpointID},
			Payload:  emptyPayload{},
		},
		Context: &Context{
			Properties: []Property{
				powerProperty(powerValue(status), now, status.UncertaintyMS),
				healthProperty("OK", now, status.UncertaintyMS),
			},
		},
	}
}

// controlResponse renders an accepted power action.
func (h *Handler) controlResponse(hdr Header, ep *Endpoint, status *agent.AckStatus) *Response {
	now := h.now()
	return &Response{
		Event: Event{
			Header:   responseHeader(hdr, "Alexa", "Response"),
			Endpoint: &ResponseEndpoint{EndpointID: ep.EndpointID},
			Payload:  emptyPayload{},
		},
		Context: &Context{
			Properties: []Property{
				powerProperty(powerValue(status), now, status.UncertaintyMS),
				healthProperty("OK", now, status.UncertaintyMS),
			},
		},
	}
}

// powerValue resolves the reported power state, falling back to the ack
// when the agent omitted an explicit value.
func powerValue(status *agent.AckStatus) string {
	if status.Value != "" {
		return status.Value
	}
	return string(status.Ack)
}

// unavailableStateReport renders a state report for a device whose agent
// produced no fresh observation.
func (h *Handler) unavailableStateReport(hdr Header, ep *Endpoint, dev *device.Device) *Response {
	now := h.now()

	var uncertaintyMS int64
	if dev.StatusUpdatedAt != nil {
		uncertaintyMS = now.Sub(*dev.StatusUpdatedAt).Milliseconds()
	}

	props := []Property{
		healthProperty("UNREACHABLE", now, uncertaintyMS),
	}
	if dev.Status == device.StatusOn || dev.Status == device.StatusOff {
		props = append(props, powerProperty(strings.ToUpper(string(dev.Status)), now, uncertaintyMS))
	}

	return &Response{
		Event: Event{
			Header:   responseHeader(hdr, "Alexa", "StateReport"),
			Endpoint: &ResponseEndpoint{EndpointID: ep.EndpointID},
			Payload:  emptyPayload{},
		},
		Context: &Context{Properties: props},
	}
}

// discoveryResponse renders a discovery response for the given endpoints.
func (h *Handler) discoveryResponse(hdr Header, endpoints []DiscoveredEndpoint) *Response {
	return &Response{
		Event: Event{
			Header:  responseHeader(hdr, "Alexa.Discovery", "Discover.Response"),
			Payload: discoveryPayload{Endpoints: endpoints},
		},
	}
}

// agentErrorResponse translates an agent-layer failure into the
// directive taxonomy.
func (h *Handler) agentErrorResponse(hdr Header, ep *Endpoint, err error) *Response {
	h.logger.Warn("device action failed", "endpoint_id", ep.EndpointID, "error", err)

	switch {
	case errors.Is(err, agent.ErrUnreachable):
		return h.errorResponse(hdr, ep, ErrTypeEndpointUnreachable, "device did not respond")
	case errors.Is(err, agent.ErrBadAddress),
		errors.Is(err, agent.ErrCredential),
		errors.Is(err, agent.ErrMalformedAck):
		return h.errorResponse(hdr, ep, ErrTypeEndpointUnreachable, "device could not be operated")
	default:
		return h.errorResponse(hdr, ep, ErrTypeEndpointUnreachable, err.Error())
	}
}

// errorResponse renders an ErrorResponse envelope.
func (h *Handler) errorResponse(hdr Header, ep *Endpoint, errType, message string) *Response {
	var respEP *ResponseEndpoint
	if ep != nil {
		respEP = &ResponseEndpoint{EndpointID: ep.EndpointID}
	}
	return &Response{
		Event: Event{
			Header:   responseHeader(hdr, "Alexa", "ErrorResponse"),
			Endpoint: respEP,
			Payload:  errorPayload{Type: errType, Message: message},
		},
	}
}

// powerAction maps a directive name to a dispatchable action.
func powerAction(name string) (agent.Action, bool) {
	switch name {
	case "TurnOn":
		return agent.ActionTurnOn, true
	case "TurnOff":
		return agent.ActionTurnOff, true
	default:
		return "", false
	}
}

// describeEndpoint builds the discovery descriptor for one device.
func describeEndpoint(dev *device.Device) DiscoveredEndpoint {
	return DiscoveredEndpoint{
		EndpointID:        dev.ID,
		ManufacturerName:  manufacturerName,
		Description:       endpointDescription,
		FriendlyName:      dev.Name,
		DisplayCategories: []string{"OTHER"},
		Cookie:            map[string]string{},
		Capabilities: []Capability{
			{
				Type:      "AlexaInterface",
				Interface: "Alexa",
				Version:   payloadVersion,
			},
			{
				Type:      "AlexaInterface",
				Interface: "Alexa.PowerController",
				Version:   payloadVersion,
				Properties: &CapabilityProperties{
					Supported:   []SupportedProperty{{Name: "powerState"}},
					Retrievable: true,
				},
			},
			{
				Type:      "AlexaInterface",
				Interface: "Alexa.EndpointHealth",
				Version:   payloadVersion,
				Properties: &CapabilityProperties{
					Supported:   []SupportedProperty{{Name: "connectivity"}},
					Retrievable: true,
				},
			},
		},
	}
}

// powerProperty builds the powerState property for a response context.
func powerProperty(value string, at time.Time, uncertaintyMS int64) Property {
	return Property{
		Namespace:                 "Alexa.PowerController",
		Name:                      "powerState",
		Value:                     value,
		TimeOfSample:              sampleTime(at),
		UncertaintyInMilliseconds: uncertaintyMS,
	}
}

// healthProperty builds the connectivity property for a response context.
func healthProperty(value string, at time.Time, uncertaintyMS int64) Property {
	return Property{
		Namespace:                 "Alexa.EndpointHealth",
		Name:                      "connectivity",
		Value:                     map[string]string{"value": value},
		TimeOfSample:              sampleTime(at),
		UncertaintyInMilliseconds: uncertaintyMS,
	}
}
