// Package configstore implements the device's persistent settings record
// and its clone-mutate-commit transaction, plus the opaque blob store
// other sub-managers (access revocation, root-client-token claims) persist
// through.
package configstore

// Settings is the device's persistent configuration record (§3).
// Fields absent from a loaded blob keep their DefaultSettings value.
type Settings struct {
	ClientID        string `json:"client_id"`
	APIKey          string `json:"api_key"`
	OAuthURL        string `json:"oauth_url"`
	ServiceURL      string `json:"service_url"`
	DeviceID        string `json:"device_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	ModelID         string `json:"model_id"`
	OEMName         string `json:"oem_name"`
	FirmwareVersion string `json:"firmware_version"`

	LocalAnonymousAccessRole string `json:"local_anonymous_access_role"`
	LocalDiscoveryEnabled    bool   `json:"local_discovery_enabled"`
	LocalPairingEnabled      bool   `json:"local_pairing_enabled"`
	LocalAccessEnabled       bool   `json:"local_access_enabled"`
	PairingModes             []string `json:"pairing_modes"`
	EmbeddedCode             string   `json:"embedded_code"`

	Secret []byte `json:"secret"`

	// RootClientTokenOwner is one of "none", "client", "cloud".
	RootClientTokenOwner string `json:"root_client_token_owner"`

	LastConfiguredSSID string `json:"last_configured_ssid"`
	RefreshToken       string `json:"refresh_token"`
	RobotAccount       string `json:"robot_account"`
}

// DefaultSettings returns the built-in defaults a fresh device (or any
// field missing from its persisted blob) starts from.
func DefaultSettings() Settings {
	return Settings{
		LocalAnonymousAccessRole: "viewer",
		LocalDiscoveryEnabled:    true,
		LocalPairingEnabled:      true,
		LocalAccessEnabled:       true,
		RootClientTokenOwner:     "none",
	}
}

// Clone returns a deep-enough copy for a Transaction to mutate without
// aliasing the committed record's slices.
func (s Settings) Clone() Settings {
	c := s
	if s.PairingModes != nil {
		c.PairingModes = append([]string(nil), s.PairingModes...)
	}
	if s.Secret != nil {
		c.Secret = append([]byte(nil), s.Secret...)
	}
	return c
}
