package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Directory defines the interface for device persistence and the
// account-device association. This abstraction allows for different
// implementations (SQLite, mock) and enables unit testing without
// database dependencies.
type Directory interface {
	// Find retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	Find(ctx context.Context, id string) (*Device, error)

	// FindByAddress retrieves a device by its control address.
	// Returns ErrDeviceNotFound if no device has that address.
	FindByAddress(ctx context.Context, controlAddress string) (*Device, error)

	// DevicesFor retrieves all devices linked to an account.
	DevicesFor(ctx context.Context, accountID string) ([]Device, error)

	// IsLinked reports whether the device is associated with the account.
	// Control and state-report flows must check this before dispatching:
	// an unlinked device id is rejected even if the device exists.
	IsLinked(ctx context.Context, accountID, deviceID string) (bool, error)

	// UpsertByAddress reconciles a registration candidate against the
	// address index. If a device with the candidate's control address
	// already exists, its name and power source are updated in place and
	// the existing record is returned (the candidate's id is discarded).
	// Otherwise the candidate is persisted as new.
	UpsertByAddress(ctx context.Context, candidate *Device) (*Device, error)

	// SetStatus persists an observed status. observedAt carries the
	// confirmation timestamp; pass the device's prior value unchanged
	// when the observation did not actually confirm fresh state.
	SetStatus(ctx context.Context, id string, status Status, observedAt *time.Time) error

	// SetLink creates or updates the account-device association.
	SetLink(ctx context.Context, accountID, deviceID string, status LinkStatus) error

	// Unlink removes the association between an account and a device.
	Unlink(ctx context.Context, accountID, deviceID string) error
}

// deviceColumns is the column list shared by all device SELECTs.
const deviceColumns = `id, name, control_address, power_source, status,
	status_updated_at, battery_level, created_at, updated_at`

// SQLiteDirectory implements Directory using SQLite.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a new SQLite-backed directory.
// The db parameter should be an open SQLite connection.
func NewSQLiteDirectory(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

// Find retrieves a device by its unique identifier.
func (d *SQLiteDirectory) Find(ctx context.Context, id string) (*Device, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)

	dev, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return dev, nil
}

// FindByAddress retrieves a device by its control address.
func (d *SQLiteDirectory) FindByAddress(ctx context.Context, controlAddress string) (*Device, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE control_address = ?`, controlAddress)

	dev, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return dev, nil
}

// DevicesFor retrieves all devices linked to an account.
func (d *SQLiteDirectory) DevicesFor(ctx context.Context, accountID string) ([]Device, error) {
	query := `
		SELECT d.id, d.name, d.control_address, d.power_source, d.status,
			d.status_updated_at, d.battery_level, d.created_at, d.updated_at
		FROM devices d
		JOIN account_devices ad ON ad.device_id = d.id
		WHERE ad.account_id = ?
		ORDER BY d.name`

	rows, err := d.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying account devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *dev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// IsLinked reports whether the device is associated with the account.
func (d *SQLiteDirectory) IsLinked(ctx context.Context, accountID, deviceID string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM account_devices WHERE account_id = ? AND device_id = ?",
		accountID, deviceID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking device link: %w", err)
	}
	return count > 0, nil
}

// UpsertByAddress reconciles a registration candidate by control address.
func (d *SQLiteDirectory) UpsertByAddress(ctx context.Context, candidate *Device) (*Device, error) {
	if err := validateCandidate(candidate); err != nil {
		return nil, err
	}

	existing, err := d.FindByAddress(ctx, candidate.ControlAddress)
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	now := time.Now().UTC()

	if existing != nil {
		// Address match wins: keep the persisted id, refresh the
		// attributes the device re-announced.
		existing.Name = candidate.Name
		existing.PowerSource = candidate.PowerSource
		if candidate.BatteryLevel != nil {
			existing.BatteryLevel = candidate.BatteryLevel
		}
		existing.UpdatedAt = now

		_, err = d.db.ExecContext(ctx, `
			UPDATE devices
			SET name = ?, power_source = ?, battery_level = ?, updated_at = ?
			WHERE id = ?`,
			existing.Name,
			string(existing.PowerSource),
			nullableInt(existing.BatteryLevel),
			now.Format(time.RFC3339),
			existing.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("updating device by address: %w", err)
		}
		return existing, nil
	}

	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	if candidate.Status == "" {
		candidate.Status = StatusUnknown
	}
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, control_address, power_source, status,
			status_updated_at, battery_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.ID,
		candidate.Name,
		candidate.ControlAddress,
		string(candidate.PowerSource),
		string(candidate.Status),
		nullableTime(candidate.StatusUpdatedAt),
		nullableInt(candidate.BatteryLevel),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDeviceExists
		}
		return nil, fmt.Errorf("inserting device: %w", err)
	}

	return candidate, nil
}

// SetStatus persists an observed status and its confirmation timestamp.
func (d *SQLiteDirectory) SetStatus(ctx context.Context, id string, status Status, observedAt *time.Time) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE devices
		SET status = ?, status_updated_at = ?, updated_at = ?
		WHERE id = ?`,
		string(status),
		nullableTime(observedAt),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// SetLink creates or updates the account-device association.
func (d *SQLiteDirectory) SetLink(ctx context.Context, accountID, deviceID string, status LinkStatus) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO account_devices (account_id, device_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, device_id)
		DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		accountID, deviceID, string(status), now, now,
	)
	if err != nil {
		return fmt.Errorf("setting device link: %w", err)
	}
	return nil
}

// Unlink removes the association between an account and a device.
func (d *SQLiteDirectory) Unlink(ctx context.Context, accountID, deviceID string) error {
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM account_devices WHERE account_id = ? AND device_id = ?",
		accountID, deviceID,
	)
	if err != nil {
		return fmt.Errorf("removing device link: %w", err)
	}
	return nil
}

// validateCandidate checks the fields a registration must provide.
func validateCandidate(c *Device) error {
	if c.Name == "" {
		return ErrInvalidName
	}
	if c.ControlAddress == "" {
		return ErrInvalidAddress
	}
	if u, err := url.Parse(c.ControlAddress); err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidAddress
	}
	switch c.PowerSource {
	case PowerSourceLine, PowerSourceBattery:
	default:
		return ErrInvalidPowerSource
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var statusUpdatedAt sql.NullString
	var batteryLevel sql.NullInt64
	var powerSource, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.ControlAddress,
		&powerSource,
		&status,
		&statusUpdatedAt,
		&batteryLevel,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.PowerSource = PowerSource(powerSource)
	d.Status = Status(status)

	if statusUpdatedAt.Valid {
		t, err := time.Parse(time.RFC3339, statusUpdatedAt.String)
		if err == nil {
			d.StatusUpdatedAt = &t
		}
	}
	if batteryLevel.Valid {
		level := int(batteryLevel.Int64)
		d.BatteryLevel = &level
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
