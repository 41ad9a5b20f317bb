package configstore

import (
	"encoding/json"

	"libweave/errcode"
)

// ConfigStore is the external persistence provider (out of core scope):
// the core never touches a filesystem directly.
type ConfigStore interface {
	LoadSettings() ([]byte, bool, error)
	SaveSettings(data []byte) error

	LoadBlob(key string) ([]byte, bool, error)
	SaveBlob(key string, data []byte) error
}

// ChangeCallback fires with the newly committed settings after every
// successful Transaction.Commit.
type ChangeCallback func(*Settings)

// Store owns the single authoritative Settings record.
type Store struct {
	backend ConfigStore
	current Settings
	onChange []ChangeCallback
}

// Load reads the persisted blob (if any) and merges it over the built-in
// defaults; fields absent from the blob keep their default value.
func Load(backend ConfigStore) (*Store, error) {
	s := &Store{backend: backend, current: DefaultSettings()}
	raw, ok, err := backend.LoadSettings()
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidState, "configstore.Load", err)
	}
	if !ok || len(raw) == 0 {
		return s, nil
	}
	merged := DefaultSettings()
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, errcode.New(errcode.InvalidPropValue, "configstore.Load", "malformed settings blob: %v", err)
	}
	s.current = merged
	return s, nil
}

// Current returns the live settings snapshot. Callers must not mutate the
// returned value's slice fields; use Begin for writes.
func (s *Store) Current() Settings { return s.current }

// OnChange registers cb to run after every committed Transaction.
func (s *Store) OnChange(cb ChangeCallback) { s.onChange = append(s.onChange, cb) }

// Begin starts a Transaction against a clone of the current settings.
func (s *Store) Begin() *Transaction {
	return &Transaction{store: s, next: s.current.Clone()}
}
