// Package auth implements local access tokens, the root-client-token
// claim/confirm handshake, and (in revocation.go) the bounded revocation
// list access tokens are checked against.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"libweave/errcode"
	"libweave/model"
)

const tagLen = 32

// CreateAccessToken builds an opaque access token for scope/userID, tagged
// with an HMAC-SHA256 over the body so equal inputs always yield equal
// tokens (4.F). The body is the ASCII text "scope:user_id:issued_at",
// appended verbatim after the tag.
func CreateAccessToken(secret []byte, scope model.Role, userID uint64, now time.Time) []byte {
	body := encodeTokenBody(scope, userID, now)
	tag := hmacTag(secret, body)

	out := make([]byte, 0, tagLen+len(body))
	out = append(out, tag...)
	out = append(out, body...)
	return out
}

// ParseAccessToken verifies token under secret. On success it returns the
// carried UserInfo and issued-at time; on any mismatch (bad length, bad
// HMAC, malformed body) it returns RoleNone and ok=false, never an error —
// a forged token is an expected input, not a programming fault.
func ParseAccessToken(secret []byte, token []byte) (scope model.Role, userID uint64, issuedAt time.Time, ok bool) {
	if len(token) <= tagLen {
		return model.RoleNone, 0, time.Time{}, false
	}
	tag := token[:tagLen]
	body := token[tagLen:]
	want := hmacTag(secret, body)
	if !hmac.Equal(tag, want) {
		return model.RoleNone, 0, time.Time{}, false
	}

	parts := strings.Split(string(body), ":")
	if len(parts) != 3 {
		return model.RoleNone, 0, time.Time{}, false
	}
	scopeN, err := strconv.Atoi(parts[0])
	if err != nil {
		return model.RoleNone, 0, time.Time{}, false
	}
	uid, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return model.RoleNone, 0, time.Time{}, false
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return model.RoleNone, 0, time.Time{}, false
	}
	return model.Role(scopeN), uid, time.Unix(sec, 0), true
}

func encodeTokenBody(scope model.Role, userID uint64, now time.Time) []byte {
	return []byte(fmt.Sprintf("%d:%d:%d", int(scope), userID, now.Unix()))
}

func hmacTag(secret, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}

// MinSecretLen is the smallest device secret AuthManager will accept
// without regenerating it (4.F: "absent or < 32 bytes").
const MinSecretLen = 32

func validateSecretLen(secret []byte) error {
	if len(secret) < MinSecretLen {
		return errcode.New(errcode.InvalidState, "auth", "device secret shorter than %d bytes", MinSecretLen)
	}
	return nil
}
