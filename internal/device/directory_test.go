package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the device tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			link_code TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			control_address TEXT NOT NULL,
			power_source TEXT NOT NULL DEFAULT 'line',
			status TEXT NOT NULL DEFAULT 'unknown',
			status_updated_at TEXT,
			battery_level INTEGER,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE UNIQUE INDEX idx_devices_control_address ON devices(control_address);
		CREATE TABLE account_devices (
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'registerable',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (account_id, device_id)
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a registration candidate for testing.
func testDevice(id, name, address string) *Device {
	return &Device{
		ID:             id,
		Name:           name,
		ControlAddress: address,
		PowerSource:    PowerSourceLine,
	}
}

// insertAccount creates a bare account row so foreign keys hold.
func insertAccount(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO accounts (id, name) VALUES (?, ?)", id, "Test"); err != nil {
		t.Fatalf("failed to insert account: %v", err)
	}
}

func TestUpsertByAddress(t *testing.T) {
	db := setupTestDB(t)
	dir := NewSQLiteDirectory(db)
	ctx := context.Background()

	t.Run("creates new device", func(t *testing.T) {
		got, err := dir.UpsertByAddress(ctx, testDevice("fp-001", "Living Room", "http://10.0.0.10"))
		if err != nil {
			t.Fatalf("UpsertByAddress() error = %v", err)
		}
		if got.ID != "fp-001" {
			t.Errorf("ID = %q, want %q", got.ID, "fp-001")
		}
		if got.Status != StatusUnknown {
			t.Errorf("Status = %q, want %q", got.Status, StatusUnknown)
		}
	})

	t.Run("generates id when candidate has none", func(t *testing.T) {
		got, err := dir.UpsertByAddress(ctx, testDevice("", "Study", "http://10.0.0.11"))
		if err != nil {
			t.Fatalf("UpsertByAddress() error = %v", err)
		}
		if got.ID == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("same address reconciles into one record", func(t *testing.T) {
		first, err := dir.UpsertByAddress(ctx, testDevice("fp-a", "Old Name", "http://10.0.0.12"))
		if err != nil {
			t.Fatalf("first UpsertByAddress() error = %v", err)
		}

		// Re-registration after firmware reset: fresh id, same address.
		second := testDevice("fp-b", "New Name", "http://10.0.0.12")
		second.PowerSource = PowerSourceBattery

		got, err := dir.UpsertByAddress(ctx, second)
		if err != nil {
			t.Fatalf("second UpsertByAddress() error = %v", err)
		}

		if got.ID != first.ID {
			t.Errorf("ID = %q, want original %q (candidate id must be discarded)", got.ID, first.ID)
		}
		if got.Name != "New Name" {
			t.Errorf("Name = %q, want %q", got.Name, "New Name")
		}
		if got.PowerSource != PowerSourceBattery {
			t.Errorf("PowerSource = %q, want %q", got.PowerSource, PowerSourceBattery)
		}

		// Exactly one row for the address.
		var count int
		if err := db.QueryRow(
			"SELECT COUNT(*) FROM devices WHERE control_address = ?", "http://10.0.0.12",
		).Scan(&count); err != nil {
			t.Fatalf("counting devices: %v", err)
		}
		if count != 1 {
			t.Errorf("device count = %d, want 1", count)
		}

		// The discarded candidate id must not exist.
		if _, err := dir.Find(ctx, "fp-b"); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Find(fp-b) error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("rejects invalid candidates", func(t *testing.T) {
		tests := []struct {
			name      string
			candidate *Device
			wantErr   error
		}{
			{"empty name", testDevice("x", "", "http://10.0.0.13"), ErrInvalidName},
			{"empty address", testDevice("x", "Den", ""), ErrInvalidAddress},
			{"relative address", testDevice("x", "Den", "not-a-url"), ErrInvalidAddress},
			{"bad power source", &Device{ID: "x", Name: "Den", ControlAddress: "http://10.0.0.13", PowerSource: "solar"}, ErrInvalidPowerSource},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := dir.UpsertByAddress(ctx, tt.candidate)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("UpsertByAddress() error = %v, want %v", err, tt.wantErr)
				}
			})
		}
	})
}

func TestFind(t *testing.T) {
	db := setupTestDB(t)
	dir := NewSQLiteDirectory(db)
	ctx := context.Background()

	if _, err := dir.UpsertByAddress(ctx, testDevice("fp-001", "Living Room", "http://10.0.0.10")); err != nil {
		t.Fatalf("UpsertByAddress() error = %v", err)
	}

	got, err := dir.Find(ctx, "fp-001")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got.ControlAddress != "http://10.0.0.10" {
		t.Errorf("ControlAddress = %q, want %q", got.ControlAddress, "http://10.0.0.10")
	}

	if _, err := dir.Find(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Find(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDevicesForAndIsLinked(t *testing.T) {
	db := setupTestDB(t)
	dir := NewSQLiteDirectory(db)
	ctx := context.Background()

	insertAccount(t, db, "acc-1")
	insertAccount(t, db, "acc-2")

	for _, d := range []*Device{
		testDevice("fp-1", "Living Room", "http://10.0.0.10"),
		testDevice("fp-2", "Bedroom", "http://10.0.0.11"),
		testDevice("fp-3", "Cabin", "http://10.0.0.12"),
	} {
		if _, err := dir.UpsertByAddress(ctx, d); err != nil {
			t.Fatalf("UpsertByAddress(%s) error = %v", d.ID, err)
		}
	}

	if err := dir.SetLink(ctx, "acc-1", "fp-1", LinkStatusAvailable); err != nil {
		t.Fatalf("SetLink() error = %v", err)
	}
	if err := dir.SetLink(ctx, "acc-1", "fp-2", LinkStatusAvailable); err != nil {
		t.Fatalf("SetLink() error = %v", err)
	}
	if err := dir.SetLink(ctx, "acc-2", "fp-3", LinkStatusAvailable); err != nil {
		t.Fatalf("SetLink() error = %v", err)
	}

	devices, err := dir.DevicesFor(ctx, "acc-1")
	if err != nil {
		t.Fatalf("DevicesFor() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("DevicesFor() returned %d devices, want 2", len(devices))
	}

	linked, err := dir.IsLinked(ctx, "acc-1", "fp-1")
	if err != nil {
		t.Fatalf("IsLinked() error = %v", err)
	}
	if !linked {
		t.Error("IsLinked(acc-1, fp-1) = false, want true")
	}

	// Existing device, other account's link: must not be considered linked.
	linked, err = dir.IsLinked(ctx, "acc-1", "fp-3")
	if err != nil {
		t.Fatalf("IsLinked() error = %v", err)
	}
	if linked {
		t.Error("IsLinked(acc-1, fp-3) = true, want false")
	}
}

func TestSetLink_Upsert(t *testing.T) {
	db := setupTestDB(t)
	dir := NewSQLiteDirectory(db)
	ctx := context.Background()

	insertAccount(t, db, "acc-1")
	if _, err := dir.UpsertByAddress(ctx, testDevice("fp-1", "Living Room", "http://10.0.0.10")); err != nil {
		t.Fatalf("UpsertByAddress() error = %v", err)
	}

	if err := dir.SetLink(ctx, "acc-1", "fp-1", LinkStatusRegisterable); err != nil {
		t.Fatalf("SetLink() error = %v", err)
	}
	if err := dir.SetLink(ctx, "acc-1", "fp-1", LinkStatusAvailable); err != nil {
		t.Fatalf("second SetLink() error = %v", err)
	}

	var count int
	var status string
	err := db.QueryRow(
		"SELECT COUNT(*), MAX(status) FROM account_devices WHERE account_id = ? AND device_id = ?",
		"acc-1", "fp-1",
	).Scan(&count, &status)
	if err != nil {
		t.Fatalf("querying link: %v", err)
	}
	if count != 1 {
		t.Errorf("link count = %d, want 1", count)
	}
	if status != string(LinkStatusAvailable) {
		t.Errorf("link status = %q, want %q", status, LinkStatusAvailable)
	}
}

func TestSetStatus(t *testing.T) {
	db := setupTestDB(t)
	dir := NewSQLiteDirectory(db)
	ctx := context.Background()

	if _, err := dir.UpsertByAddress(ctx, testDevice("fp-1", "Living Room", "http://10.0.0.10")); err != nil {
		t.Fatalf("UpsertByAddress() error = %v", err)
	}

	t.Run("records confirmed observation", func(t *testing.T) {
		observed := time.Now().UTC().Truncate(time.Second)
		if err := dir.SetStatus(ctx, "fp-1", StatusOn, &observed); err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}

		got, err := dir.Find(ctx, "fp-1")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if got.Status != StatusOn {
			t.Errorf("Status = %q, want %q", got.Status, StatusOn)
		}
		if got.StatusUpdatedAt == nil || !got.StatusUpdatedAt.Equal(observed) {
			t.Errorf("StatusUpdatedAt = %v, want %v", got.StatusUpdatedAt, observed)
		}
	})

	t.Run("preserves prior timestamp when passed unchanged", func(t *testing.T) {
		before, err := dir.Find(ctx, "fp-1")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}

		if err := dir.SetStatus(ctx, "fp-1", StatusUnknown, before.StatusUpdatedAt); err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}

		after, err := dir.Find(ctx, "fp-1")
		if err != nil {
			t.Fatalf("Find() error = %v", err)
		}
		if after.Status != StatusUnknown {
			t.Errorf("Status = %q, want %q", after.Status, StatusUnknown)
		}
		if after.StatusUpdatedAt == nil || !after.StatusUpdatedAt.Equal(*before.StatusUpdatedAt) {
			t.Errorf("StatusUpdatedAt = %v, want preserved %v", after.StatusUpdatedAt, before.StatusUpdatedAt)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		if err := dir.SetStatus(ctx, "missing", StatusOn, nil); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("SetStatus(missing) error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestLinkStatusFor(t *testing.T) {
	if got := LinkStatusFor(PowerSourceLine); got != LinkStatusAvailable {
		t.Errorf("LinkStatusFor(line) = %q, want %q", got, LinkStatusAvailable)
	}
	if got := LinkStatusFor(PowerSourceBattery); got != LinkStatusNotRegisterable {
		t.Errorf("LinkStatusFor(battery) = %q, want %q", got, LinkStatusNotRegisterable)
	}
}
