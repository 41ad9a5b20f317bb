package auth

import (
	"bytes"
	"encoding/json"
	"time"

	"libweave/errcode"
)

const (
	revocationBlobKey = "access_revocation_list"
	revocationCap      = 1024
)

// RevocationEntry marks every access token issued to (UserID, AppID)
// before IssuedBefore as revoked, until Expiration.
type RevocationEntry struct {
	UserID       []byte    `json:"user_id"`
	AppID        []byte    `json:"app_id"`
	IssuedBefore time.Time `json:"issued_before"`
	Expiration   time.Time `json:"expiration"`
}

// RevocationManager owns the bounded, persisted revocation list.
type RevocationManager struct {
	backend blobStore
	entries []RevocationEntry
}

// blobStore is the subset of configstore.ConfigStore the revocation
// manager needs.
type blobStore interface {
	LoadBlob(key string) ([]byte, bool, error)
	SaveBlob(key string, data []byte) error
}

// NewRevocationManager loads any persisted entries from backend.
func NewRevocationManager(backend blobStore) (*RevocationManager, error) {
	m := &RevocationManager{backend: backend}
	raw, ok, err := backend.LoadBlob(revocationBlobKey)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidState, "NewRevocationManager", err)
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.entries); err != nil {
			return nil, errcode.New(errcode.InvalidPropValue, "NewRevocationManager", "malformed revocation blob: %v", err)
		}
	}
	return m, nil
}

// GetCapacity returns the maximum number of entries the list holds.
func (m *RevocationManager) GetCapacity() int { return revocationCap }

// GetEntries returns a copy of the live entry list.
func (m *RevocationManager) GetEntries() []RevocationEntry {
	return append([]RevocationEntry(nil), m.entries...)
}

// Block inserts a revocation entry, evicting anything already expired
// first. If the list is still full, it fails with list_full.
func (m *RevocationManager) Block(userID, appID []byte, expiration time.Time, now time.Time) error {
	m.evictExpired(now)
	if len(m.entries) >= revocationCap {
		return errcode.New(errcode.ListFull, "Block", "revocation list is full (%d entries)", revocationCap)
	}
	m.entries = append(m.entries, RevocationEntry{
		UserID:       append([]byte(nil), userID...),
		AppID:        append([]byte(nil), appID...),
		IssuedBefore: now,
		Expiration:   expiration,
	})
	return m.persist()
}

// Unblock removes every entry matching (userID, appID).
func (m *RevocationManager) Unblock(userID, appID []byte) error {
	out := m.entries[:0:0]
	for _, e := range m.entries {
		if bytes.Equal(e.UserID, userID) && bytes.Equal(e.AppID, appID) {
			continue
		}
		out = append(out, e)
	}
	m.entries = out
	return m.persist()
}

// IsBlocked reports whether any entry for (userID, appID) covers a token
// issued at issuedAt (entry.IssuedBefore >= issuedAt).
func (m *RevocationManager) IsBlocked(userID, appID []byte, issuedAt time.Time) bool {
	for _, e := range m.entries {
		if bytes.Equal(e.UserID, userID) && bytes.Equal(e.AppID, appID) {
			if !e.IssuedBefore.Before(issuedAt) {
				return true
			}
		}
	}
	return false
}

func (m *RevocationManager) evictExpired(now time.Time) {
	out := m.entries[:0:0]
	for _, e := range m.entries {
		if e.Expiration.After(now) {
			out = append(out, e)
		}
	}
	m.entries = out
}

func (m *RevocationManager) persist() error {
	data, err := json.Marshal(m.entries)
	if err != nil {
		return errcode.Wrap(errcode.InvalidPropValue, "RevocationManager.persist", err)
	}
	if err := m.backend.SaveBlob(revocationBlobKey, data); err != nil {
		return errcode.Wrap(errcode.InvalidState, "RevocationManager.persist", err)
	}
	return nil
}
