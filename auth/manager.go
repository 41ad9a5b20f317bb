package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"

	"libweave/clock"
	"libweave/configstore"
	"libweave/errcode"
	"libweave/model"
)

const rootClaimRingCap = 16

// UserInfo is the identity an access token or root-client-token carries.
type UserInfo struct {
	Scope  model.Role
	UserID uint64
}

// rootTokenClaim is CBOR-encoded as the start of a root client token's
// body; a random suffix follows it.
type rootTokenClaim struct {
	Version  int    `cbor:"1,keyasint"`
	Owner    string `cbor:"2,keyasint"`
	IssuedAt int64  `cbor:"3,keyasint"`
}

type pendingClaim struct {
	owner string
	token []byte
}

// Manager is the device's local auth manager (4.F): it owns the device
// secret, issues and parses access tokens, and runs the root-client-token
// claim/confirm handshake. It holds a reference to the revocation manager
// and a TLS cert fingerprint for pinned local transports, neither of
// which it interprets itself.
type Manager struct {
	store       *configstore.Store
	revocation  *RevocationManager
	certFingerprint []byte
	clock       clock.Clock

	pending []pendingClaim
}

// NewManager constructs a Manager, generating a fresh 32-byte secret (and
// persisting it) if the store's current one is absent or too short.
func NewManager(store *configstore.Store, revocation *RevocationManager, certFingerprint []byte, clk clock.Clock) (*Manager, error) {
	m := &Manager{store: store, revocation: revocation, certFingerprint: certFingerprint, clock: clk}
	if err := validateSecretLen(store.Current().Secret); err != nil {
		secret := make([]byte, MinSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, errcode.Wrap(errcode.InvalidState, "NewManager", err)
		}
		if err := store.Begin().SetSecret(secret).Commit(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) secret() []byte { return m.store.Current().Secret }

// CertFingerprint returns the TLS cert fingerprint local transports pin
// against.
func (m *Manager) CertFingerprint() []byte { return m.certFingerprint }

// CreateAccessToken issues a token for info, timestamped now.
func (m *Manager) CreateAccessToken(info UserInfo) []byte {
	return CreateAccessToken(m.secret(), info.Scope, info.UserID, m.clock.Now())
}

// ParseAccessToken verifies token and extracts its claimed identity.
func (m *Manager) ParseAccessToken(token []byte) (UserInfo, int64, bool) {
	scope, userID, issuedAt, ok := ParseAccessToken(m.secret(), token)
	if !ok {
		return UserInfo{}, 0, false
	}
	return UserInfo{Scope: scope, UserID: userID}, issuedAt.Unix(), true
}

// IsValidAuthToken reports whether token verifies under the device's own
// secret and is not revoked for appID.
func (m *Manager) IsValidAuthToken(token []byte, appID []byte) (UserInfo, bool) {
	scope, userID, issuedAt, ok := ParseAccessToken(m.secret(), token)
	if !ok {
		return UserInfo{}, false
	}
	userIDBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(userIDBytes, userID)
	if m.revocation != nil && m.revocation.IsBlocked(userIDBytes, appID, issuedAt) {
		return UserInfo{}, false
	}
	return UserInfo{Scope: scope, UserID: userID}, true
}

// ClaimRootClientAuthToken pushes a new pending claim for owner ("client"
// or "cloud") and returns its serialized token, enforcing the precedence
// table in evaluateClaim. Claiming "none" is a programming error (4.F).
func (m *Manager) ClaimRootClientAuthToken(owner string) ([]byte, error) {
	current := m.store.Current().RootClientTokenOwner
	if owner == "none" {
		errcode.Fatal("ClaimRootClientAuthToken", "cannot claim root client token for owner %q", owner)
	}
	if !evaluateClaim(current, owner) {
		return nil, errcode.New(errcode.AccessDenied, "ClaimRootClientAuthToken", "owner %q cannot claim over existing owner %q", owner, current)
	}

	body, err := cbor.Marshal(rootTokenClaim{Version: 1, Owner: owner, IssuedAt: m.clock.Now().Unix()})
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidState, "ClaimRootClientAuthToken", err)
	}
	// A random suffix keeps claims made within the same second distinct, so
	// an evicted claim's token never matches a later one.
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errcode.Wrap(errcode.InvalidState, "ClaimRootClientAuthToken", err)
	}
	body = append(body, nonce...)
	tag := hmacTag(m.secret(), body)
	token := append(append([]byte{}, tag...), body...)

	m.pending = append(m.pending, pendingClaim{owner: owner, token: token})
	if len(m.pending) > rootClaimRingCap {
		m.pending = m.pending[len(m.pending)-rootClaimRingCap:]
	}
	return token, nil
}

// ConfirmClientAuthToken matches token against the pending-claim ring; on
// a match it commits the claimed owner via a Transaction and clears the
// ring. A stale or duplicate-use token, or overflow eviction, returns
// false rather than an error.
func (m *Manager) ConfirmClientAuthToken(token []byte) (bool, error) {
	for _, p := range m.pending {
		if bytes.Equal(p.token, token) {
			if err := m.store.Begin().SetRootClientTokenOwner(p.owner).Commit(); err != nil {
				return false, err
			}
			m.pending = nil
			return true, nil
		}
	}
	return false, nil
}

// evaluateClaim implements 4.F's 9-way precedence table: claiming over
// none always succeeds, a client claim is refused over client or cloud,
// and a cloud claim succeeds over client or cloud.
func evaluateClaim(current, owner string) bool {
	switch current {
	case "none":
		return true
	case "client":
		return owner == "cloud"
	case "cloud":
		return owner == "cloud"
	default:
		return false
	}
}
