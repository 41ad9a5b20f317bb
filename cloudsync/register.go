package cloudsync

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"libweave/errcode"
	"libweave/model"
	"libweave/transport"
)

// RegisterDevice runs the three-step ticket exchange (4.H): PATCH the
// registration ticket with a self-describing device draft, finalize it
// for a device id, robot account, and authorization code, then trade the
// code for an OAuth refresh token. Unlike the sync loop's cloud calls, a
// non-2xx response here fails done immediately rather than retrying.
// On success done is called with the cloud-assigned device id.
func (s *Syncer) RegisterDevice(data RegistrationData, done func(deviceID string, err error)) {
	s.setState(StateConnecting)
	s.SetPairingInfo(PairingInfo{SessionID: uuid.NewString(), Mode: "cloud"})

	cur := s.store.Current()
	draft := s.buildDeviceDraft()
	body, err := json.Marshal(map[string]any{
		"deviceDraft":   draft,
		"oauthClientId": data.OAuthClientID,
	})
	if err != nil {
		done("", errcode.Wrap(errcode.InvalidPropValue, "RegisterDevice", err))
		return
	}

	ticketURL := cur.ServiceURL + "/registrationTickets/" + data.Ticket + "?key=" + cur.APIKey
	req := transport.HttpRequest{
		Method:  http.MethodPatch,
		URL:     ticketURL,
		Headers: map[string]string{"Idempotency-Key": uuid.NewString()},
		Body:    body,
	}
	s.http.Do(ctx(), req, func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("RegisterDevice.patch", resp, err); cerr != nil {
			s.setState(StateUnregistered)
			done("", cerr)
			return
		}
		s.finalizeTicket(data, done)
	})
}

func (s *Syncer) finalizeTicket(data RegistrationData, done func(deviceID string, err error)) {
	cur := s.store.Current()
	finalizeURL := cur.ServiceURL + "/registrationTickets/" + data.Ticket + "/finalize?key=" + cur.APIKey
	s.http.Do(ctx(), transport.HttpRequest{Method: http.MethodPost, URL: finalizeURL}, func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("RegisterDevice.finalize", resp, err); cerr != nil {
			s.setState(StateUnregistered)
			done("", cerr)
			return
		}
		var fin struct {
			DeviceID          string `json:"deviceId"`
			RobotAccount      string `json:"robotAccountEmail"`
			AuthorizationCode string `json:"robotAccountAuthorizationCode"`
		}
		if err := json.Unmarshal(resp.Body, &fin); err != nil {
			s.setState(StateUnregistered)
			done("", errcode.New(errcode.CloudError, "RegisterDevice.finalize", "malformed finalize response: %v", err))
			return
		}
		s.exchangeOAuthCode(fin.DeviceID, fin.RobotAccount, fin.AuthorizationCode, done)
	})
}

func (s *Syncer) exchangeOAuthCode(deviceID, robotAccount, code string, done func(deviceID string, err error)) {
	cur := s.store.Current()
	form := "code=" + code + "&client_id=" + cur.ClientID + "&grant_type=authorization_code"
	s.http.Do(ctx(), transport.HttpRequest{
		Method:  http.MethodPost,
		URL:     cur.OAuthURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form),
	}, func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("RegisterDevice.oauth", resp, err); cerr != nil {
			s.setState(StateUnregistered)
			done("", cerr)
			return
		}
		var tok struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
		}
		if err := json.Unmarshal(resp.Body, &tok); err != nil {
			s.setState(StateUnregistered)
			done("", errcode.New(errcode.CloudError, "RegisterDevice.oauth", "malformed token response: %v", err))
			return
		}

		s.accessToken = tok.AccessToken
		s.accessTokenExpiresAt = s.clock.Now().Add(secondsMinusSafety(tok.ExpiresIn))

		tx := s.store.Begin().SetDeviceID(deviceID).SetRefreshToken(tok.RefreshToken).SetRobotAccount(robotAccount)
		if err := tx.Commit(); err != nil {
			s.setState(StateUnregistered)
			done("", err)
			return
		}

		s.setState(StateConnected)
		s.Start()
		s.runSyncTick()
		done(deviceID, nil)
	})
}

func (s *Syncer) buildDeviceDraft() map[string]any {
	cur := s.store.Current()
	return map[string]any{
		"name":            cur.Name,
		"description":     cur.Description,
		"location":        cur.Location,
		"modelId":         cur.ModelID,
		"oemName":         cur.OEMName,
		"firmwareVersion": cur.FirmwareVersion,
		"components":      s.model.GetComponentsForUserRole(model.RoleOwner),
	}
}
