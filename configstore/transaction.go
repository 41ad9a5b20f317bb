package configstore

import (
	"encoding/json"

	"libweave/errcode"
)

// Transaction clones the current settings, lets the caller apply setters
// against the clone, then atomically swaps it in and persists it on
// Commit. Every sub-manager that mutates settings goes through one of
// these rather than touching Store.current directly.
type Transaction struct {
	store *Store
	next  Settings
}

func (t *Transaction) SetName(v string) *Transaction            { t.next.Name = v; return t }
func (t *Transaction) SetDescription(v string) *Transaction     { t.next.Description = v; return t }
func (t *Transaction) SetLocation(v string) *Transaction        { t.next.Location = v; return t }
func (t *Transaction) SetLocalDiscoveryEnabled(v bool) *Transaction {
	t.next.LocalDiscoveryEnabled = v
	return t
}
func (t *Transaction) SetLocalPairingEnabled(v bool) *Transaction {
	t.next.LocalPairingEnabled = v
	return t
}
func (t *Transaction) SetLocalAccessEnabled(v bool) *Transaction {
	t.next.LocalAccessEnabled = v
	return t
}
func (t *Transaction) SetLocalAnonymousAccessRole(v string) *Transaction {
	t.next.LocalAnonymousAccessRole = v
	return t
}
func (t *Transaction) SetRootClientTokenOwner(v string) *Transaction {
	t.next.RootClientTokenOwner = v
	return t
}
func (t *Transaction) SetDeviceID(v string) *Transaction     { t.next.DeviceID = v; return t }
func (t *Transaction) SetRefreshToken(v string) *Transaction { t.next.RefreshToken = v; return t }
func (t *Transaction) SetRobotAccount(v string) *Transaction { t.next.RobotAccount = v; return t }
func (t *Transaction) SetLastConfiguredSSID(v string) *Transaction {
	t.next.LastConfiguredSSID = v
	return t
}
func (t *Transaction) SetSecret(v []byte) *Transaction { t.next.Secret = v; return t }

// Next exposes the in-progress clone for callers that need to read a field
// they just set (or read one they have not touched) before Commit.
func (t *Transaction) Next() Settings { return t.next }

// Commit persists the mutated clone and, only on success, swaps it in as
// Store.current and runs the change callbacks. A failed SaveSettings
// leaves the store's current settings untouched: callers never observe a
// partial commit.
func (t *Transaction) Commit() error {
	data, err := json.Marshal(t.next)
	if err != nil {
		return errcode.Wrap(errcode.InvalidPropValue, "Transaction.Commit", err)
	}
	if err := t.store.backend.SaveSettings(data); err != nil {
		return errcode.Wrap(errcode.InvalidState, "Transaction.Commit", err)
	}
	t.store.current = t.next
	for _, cb := range t.store.onChange {
		cb(&t.store.current)
	}
	return nil
}
