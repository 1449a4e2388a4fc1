package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emberfield/hearth-bridge/internal/device"
)

// registerRequest is the body of a device self-registration call.
// LinkCode optionally attaches the device to an in-progress linking
// session, so devices discovered before linking completes are picked up
// by the workflow later.
type registerRequest struct {
	Name           string `json:"name"`
	ControlAddress string `json:"control_address"`
	PowerSource    string `json:"power_source"`
	BatteryLevel   *int   `json:"battery_level,omitempty"`
	LinkCode       string `json:"link_code,omitempty"`
}

// handleDeviceRegister registers a device (or refreshes an existing
// registration). The control address is the identity key: a device
// re-registering with a fresh id after a firmware reset is reconciled
// into its existing record.
func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	ps := device.PowerSource(req.PowerSource)
	if req.PowerSource == "" {
		ps = device.PowerSourceLine
	}

	candidate := &device.Device{
		Name:           req.Name,
		ControlAddress: req.ControlAddress,
		PowerSource:    ps,
		BatteryLevel:   req.BatteryLevel,
	}

	registered, err := s.directory.UpsertByAddress(r.Context(), candidate)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidAddress),
			errors.Is(err, device.ErrInvalidName),
			errors.Is(err, device.ErrInvalidPowerSource):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("device registration failed",
				"control_address", req.ControlAddress,
				"error", err,
			)
			writeInternalError(w, "device registration failed")
		}
		return
	}

	if req.LinkCode != "" {
		if err := s.attachToSession(r.Context(), req.LinkCode, registered.ID); err != nil {
			writeBadRequest(w, "unknown linking session")
			return
		}
	}

	s.logger.Info("device registered",
		"device_id", registered.ID,
		"control_address", registered.ControlAddress,
	)
	writeJSON(w, http.StatusOK, registered)
}

// attachToSession links a freshly registered device to the placeholder
// account of an in-progress linking session.
func (s *Server) attachToSession(ctx context.Context, linkCode, deviceID string) error {
	session, err := s.accounts.GetByLinkCode(ctx, linkCode)
	if err != nil {
		return err
	}
	return s.directory.SetLink(ctx, session.ID, deviceID, device.LinkStatusRegisterable)
}
