package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emberfield/hearth-bridge/internal/device"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
	"github.com/emberfield/hearth-bridge/internal/infrastructure/logging"
)

// stubSigner mints a fixed credential or fails.
type stubSigner struct {
	err error
}

func (s *stubSigner) Mint(string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "test-credential", nil
}

// statusWrite captures a single SetStatus call.
type statusWrite struct {
	id         string
	status     device.Status
	observedAt *time.Time
}

// memStore records SetStatus calls in memory.
type memStore struct {
	writes []statusWrite
}

func (m *memStore) SetStatus(_ context.Context, id string, status device.Status, observedAt *time.Time) error {
	m.writes = append(m.writes, statusWrite{id: id, status: status, observedAt: observedAt})
	return nil
}

// newTestDispatcher wires a dispatcher against an in-memory store.
func newTestDispatcher(signer Signer, store StatusStore) *Dispatcher {
	return NewDispatcher(signer, store, logging.Default(), nil)
}

// agentServer runs a fake device agent replying with the given body.
func agentServer(t *testing.T, status int, body string, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/directive" {
			t.Errorf("agent path = %q, want /directive", r.URL.Path)
		}
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFireplace(addr string) *device.Device {
	return &device.Device{
		ID:             "fp-1",
		Name:           "Living Room",
		ControlAddress: addr,
		PowerSource:    device.PowerSourceLine,
		Status:         device.StatusUnknown,
	}
}

func TestExecute_AcceptedOn(t *testing.T) {
	var auth string
	srv := agentServer(t, http.StatusOK, `{"ack":"ON","value":"ON"}`, &auth)

	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	status, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(srv.URL))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if status.Ack != AckOn {
		t.Errorf("Ack = %q, want %q", status.Ack, AckOn)
	}
	if status.Value != "ON" {
		t.Errorf("Value = %q, want %q", status.Value, "ON")
	}
	if !status.Accepted() {
		t.Error("Accepted() = false, want true")
	}
	if status.UncertaintyMS != 0 {
		t.Errorf("UncertaintyMS = %d, want 0 for fresh observation", status.UncertaintyMS)
	}
	if auth != "Bearer test-credential" {
		t.Errorf("Authorization = %q, want minted bearer credential", auth)
	}

	if len(store.writes) != 1 {
		t.Fatalf("storage writes = %d, want exactly 1", len(store.writes))
	}
	w := store.writes[0]
	if w.status != device.StatusOn {
		t.Errorf("persisted status = %q, want %q", w.status, device.StatusOn)
	}
	if w.observedAt == nil {
		t.Error("observedAt = nil, want fresh timestamp for informative ack")
	}
}

func TestExecute_NonInformativeAckPreservesTimestamp(t *testing.T) {
	srv := agentServer(t, http.StatusOK, `{"ack":"UNKNOWN"}`, nil)

	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	prior := time.Now().UTC().Add(-90 * time.Second)
	dev := testFireplace(srv.URL)
	dev.Status = device.StatusOn
	dev.StatusUpdatedAt = &prior

	status, err := d.Execute(context.Background(), ActionUpdate, dev)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if status.Ack != AckUnknown {
		t.Errorf("Ack = %q, want %q", status.Ack, AckUnknown)
	}
	// Staleness counts from the prior confirmed observation.
	if status.UncertaintyMS < 89_000 {
		t.Errorf("UncertaintyMS = %d, want >= 89000", status.UncertaintyMS)
	}

	if len(store.writes) != 1 {
		t.Fatalf("storage writes = %d, want 1", len(store.writes))
	}
	w := store.writes[0]
	if w.status != device.StatusUnknown {
		t.Errorf("persisted status = %q, want %q (never a stale prior value)", w.status, device.StatusUnknown)
	}
	if w.observedAt == nil || !w.observedAt.Equal(prior) {
		t.Errorf("observedAt = %v, want preserved prior %v", w.observedAt, prior)
	}
}

func TestExecute_AckMappingTotality(t *testing.T) {
	tests := []struct {
		ack        string
		wantStatus device.Status
	}{
		{"ON", device.StatusOn},
		{"OFF", device.StatusOff},
		{"UNKNOWN", device.StatusUnknown},
		{"UPDATING", device.StatusUnknown},
		{"NA", device.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.ack, func(t *testing.T) {
			srv := agentServer(t, http.StatusOK, `{"ack":"`+tt.ack+`"}`, nil)

			store := &memStore{}
			d := newTestDispatcher(&stubSigner{}, store)

			status, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(srv.URL))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if status.Ack != Ack(tt.ack) {
				t.Errorf("Ack = %q, want %q", status.Ack, tt.ack)
			}
			if len(store.writes) != 1 || store.writes[0].status != tt.wantStatus {
				t.Errorf("persisted status = %+v, want %q", store.writes, tt.wantStatus)
			}
		})
	}
}

func TestExecute_BadAddress(t *testing.T) {
	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	tests := []string{"", "not-a-url", "ftp://10.0.0.1", "http://"}
	for _, addr := range tests {
		t.Run(addr, func(t *testing.T) {
			_, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(addr))
			if !errors.Is(err, ErrBadAddress) {
				t.Errorf("Execute() error = %v, want ErrBadAddress", err)
			}
		})
	}

	if len(store.writes) != 0 {
		t.Errorf("storage writes = %d, want 0", len(store.writes))
	}
}

func TestExecute_CredentialError(t *testing.T) {
	store := &memStore{}
	d := newTestDispatcher(&stubSigner{err: errors.New("kaput")}, store)

	_, err := d.Execute(context.Background(), ActionTurnOn, testFireplace("http://10.0.0.1"))
	if !errors.Is(err, ErrCredential) {
		t.Errorf("Execute() error = %v, want ErrCredential", err)
	}
	if len(store.writes) != 0 {
		t.Errorf("storage writes = %d, want 0", len(store.writes))
	}
}

func TestExecute_Unreachable(t *testing.T) {
	// A server that is already closed models a connection failure.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	_, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(addr))
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Execute() error = %v, want ErrUnreachable", err)
	}

	// No storage mutation before a decoded acknowledgement.
	if len(store.writes) != 0 {
		t.Errorf("storage writes = %d, want 0", len(store.writes))
	}
}

func TestExecute_AgentServerError(t *testing.T) {
	srv := agentServer(t, http.StatusBadGateway, "", nil)

	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	_, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(srv.URL))
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Execute() error = %v, want ErrUnreachable", err)
	}
	if len(store.writes) != 0 {
		t.Errorf("storage writes = %d, want 0", len(store.writes))
	}
}

func TestExecute_MalformedAck(t *testing.T) {
	srv := agentServer(t, http.StatusOK, "not json at all", nil)

	store := &memStore{}
	d := newTestDispatcher(&stubSigner{}, store)

	_, err := d.Execute(context.Background(), ActionTurnOn, testFireplace(srv.URL))
	if !errors.Is(err, ErrMalformedAck) {
		t.Errorf("Execute() error = %v, want ErrMalformedAck", err)
	}
	if len(store.writes) != 0 {
		t.Errorf("storage writes = %d, want 0", len(store.writes))
	}
}

func TestKeySigner_Mint(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	signer, err := NewSigner(config.SigningConfig{
		PrivateKeyPEM: string(keyPEM),
		KeyID:         "v1",
		CredentialTTL: 60,
	})
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	cred, err := signer.Mint("http://10.0.0.1")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if cred == "" {
		t.Error("Mint() returned empty credential")
	}
	if signer.KeyID() != "v1" {
		t.Errorf("KeyID() = %q, want %q", signer.KeyID(), "v1")
	}
}

func TestNewSigner_BadKey(t *testing.T) {
	_, err := NewSigner(config.SigningConfig{
		PrivateKeyPEM: "not pem",
		KeyID:         "v1",
	})
	if err == nil {
		t.Error("NewSigner() expected error for invalid PEM, got nil")
	}
}
