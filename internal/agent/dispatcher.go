package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/history"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

// callTimeout bounds the complete device-agent call: connection plus full
// response. Voice-platform response budgets are themselves seconds-scale,
// so there is exactly one attempt per invocation and no internal retry.
const callTimeout = 7 * time.Second

// Action is a command understood by a device agent.
type Action string

// Action constants. Update requests a status refresh with no state change intent.
const (
	ActionTurnOn  Action = "TurnOn"
	ActionTurnOff Action = "TurnOff"
	ActionUpdate  Action = "Update"
)

// Ack is a device agent's acknowledgement of an attempted action.
type Ack string

// Ack constants.
const (
	AckOn           Ack = "ON"
	AckOff          Ack = "OFF"
	AckUnknown      Ack = "UNKNOWN"
	AckUpdating     Ack = "UPDATING"
	AckNotAvailable Ack = "NA"
)

// AckStatus is the transient result of a dispatched action.
type AckStatus struct {
	// Ack is the agent's acknowledgement kind.
	Ack Ack

	// Value is the resolved power state ("ON"/"OFF") for accepted acks.
	Value string

	// UncertaintyMS is the staleness estimate: elapsed milliseconds since
	// the status was last confirmed by the device. Near zero when this
	// call itself produced a fresh observation.
	UncertaintyMS int64
}

// Accepted reports whether the agent confirmed an on/off state.
func (s *AckStatus) Accepted() bool {
	return s.Ack == AckOn || s.Ack == AckOff
}

// StatusStore is the slice of the device directory the dispatcher writes to.
type StatusStore interface {
	SetStatus(ctx context.Context, id string, status device.Status, observedAt *time.Time) error
}

// directiveRequest is the wire form of an outbound action.
type directiveRequest struct {
	Name string `json:"name"`
}

// directiveAck is the wire form of an agent's acknowledgement.
type directiveAck struct {
	Ack   string `json:"ack"`
	Value string `json:"value,omitempty"`
}

// Dispatcher issues signed commands to device agents and reconciles the
// persisted device state with their acknowledgements.
//
// Per invocation: exactly one outbound network call, at most one storage
// write. The write happens only after a decoded acknowledgement, so a
// caller abandoning the request mid-flight leaves no partial state.
//
// Thread Safety: safe for concurrent use; state is confined to injected
// collaborators.
type Dispatcher struct {
	signer   Signer
	store    StatusStore
	client   *http.Client
	logger   *logging.Logger
	recorder *history.Recorder
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. The recorder may be nil to disable
// status-history recording.
func NewDispatcher(signer Signer, store StatusStore, logger *logging.Logger, recorder *history.Recorder) *Dispatcher {
	return &Dispatcher{
		signer:   signer,
		store:    store,
		client:   &http.Client{Timeout: callTimeout},
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Execute dispatches an action to the device's agent and persists the
// acknowledged status.
//
// The algorithm is fixed:
//  1. Validate the control address (ErrBadAddress).
//  2. Mint the signed credential (ErrCredential).
//  3. POST {controlAddress}/directive, bounded by the 7-second call
//     timeout (ErrUnreachable on transport failure or timeout).
//  4. Decode the acknowledgement (ErrMalformedAck).
//  5. Map the ack to on/off/unknown; rejected and unavailable acks map
//     to unknown, never to a stale prior value.
//  6. Persist the status. A non-informative ack preserves the prior
//     confirmation timestamp so the reported staleness keeps counting
//     from the last real observation.
func (d *Dispatcher) Execute(ctx context.Context, action Action, dev *device.Device) (*AckStatus, error) {
	endpoint, err := directiveURL(dev.ControlAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadAddress, dev.ControlAddress)
	}

	credential, err := d.signer.Mint(dev.ControlAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredential, err)
	}

	body, err := json.Marshal(directiveRequest{Name: string(action)})
	if err != nil {
		return nil, fmt.Errorf("encoding directive: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("device agent call failed",
			"device_id", dev.ID,
			"action", string(action),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: agent returned status %d", ErrUnreachable, resp.StatusCode)
	}

	var ack directiveAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAck, err)
	}

	status := d.reconcile(ctx, Ack(ack.Ack), dev)
	status.Value = ack.Value

	d.logger.Debug("device action dispatched",
		"device_id", dev.ID,
		"action", string(action),
		"ack", string(status.Ack),
		"uncertainty_ms", status.UncertaintyMS,
	)

	return status, nil
}

// reconcile maps the ack to a persisted status and computes staleness.
func (d *Dispatcher) reconcile(ctx context.Context, ack Ack, dev *device.Device) *AckStatus {
	now := d.now().UTC()

	var newStatus device.Status
	var observedAt *time.Time

	switch ack {
	case AckOn:
		newStatus = device.StatusOn
		observedAt = &now
	case AckOff:
		newStatus = device.StatusOff
		observedAt = &now
	default:
		// The agent did not confirm fresh state: status is unknown and
		// the prior confirmation timestamp is preserved, so staleness
		// reflects the last observation that actually happened.
		newStatus = device.StatusUnknown
		observedAt = dev.StatusUpdatedAt
	}

	if err := d.store.SetStatus(ctx, dev.ID, newStatus, observedAt); err != nil {
		// The ack is still authoritative for the caller's response even
		// if the advisory status write failed.
		d.logger.Error("persisting device status failed",
			"device_id", dev.ID,
			"error", err,
		)
	}

	var uncertaintyMS int64
	if observedAt != nil {
		uncertaintyMS = now.Sub(*observedAt).Milliseconds()
	}

	d.recorder.RecordStatus(dev.ID, string(newStatus), uncertaintyMS)

	return &AckStatus{
		Ack:           ack,
		UncertaintyMS: uncertaintyMS,
	}
}

// directiveURL validates the control address and appends the directive path.
func directiveURL(controlAddress string) (string, error) {
	u, err := url.Parse(controlAddress)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.JoinPath("directive").String(), nil
}
