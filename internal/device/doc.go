// Package device provides the Device Directory for Hearth Bridge.
//
// The directory is the catalogue of controllable fireplaces and their
// association with accounts. It backs discovery (list the devices an
// account may see), control (verify ownership before a command is
// dispatched), and registration (reconcile re-announcing devices).
//
// # Key Types
//
//   - Device: a fireplace endpoint with a control address and last known status
//   - Link: the account-device association with its registration state
//   - Directory: persistence interface, implemented by SQLiteDirectory
//
// # The address invariant
//
// A device's control address is unique across the directory. Devices
// generate a fresh id when they re-register after a firmware reset, so
// UpsertByAddress treats the address as the identity key: a candidate
// matching an existing address updates that record in place and its own
// id is discarded. The directory never holds two devices with the same
// address.
//
// # Thread Safety
//
// SQLiteDirectory is safe for concurrent use; it holds no state beyond
// the *sql.DB handle, which manages its own locking.
package device
