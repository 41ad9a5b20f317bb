package cloudsync

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"libweave/command"
	"libweave/errcode"
	"libweave/model"
	"libweave/transport"
	"libweave/value"
)

// refreshAccessToken trades the stored refresh token for a fresh access
// token. An invalid_grant response means the refresh token itself was
// revoked: the syncer drops to StateInvalidCredentials and clears it
// rather than retrying, since no amount of backoff fixes a revoked
// grant.
func (s *Syncer) refreshAccessToken(done func(error)) {
	cur := s.store.Current()
	form := "refresh_token=" + cur.RefreshToken + "&client_id=" + cur.ClientID + "&grant_type=refresh_token"
	s.http.Do(ctx(), transport.HttpRequest{
		Method:  http.MethodPost,
		URL:     cur.OAuthURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form),
	}, func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("refreshAccessToken", resp, err); cerr != nil {
			if isInvalidGrant(resp) {
				s.setState(StateInvalidCredentials)
				tx := s.store.Begin().SetRefreshToken("")
				_ = tx.Commit()
			}
			done(cerr)
			return
		}
		var tok struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if jerr := json.Unmarshal(resp.Body, &tok); jerr != nil {
			done(errcode.New(errcode.CloudError, "refreshAccessToken", "malformed token response: %v", jerr))
			return
		}
		s.accessToken = tok.AccessToken
		s.accessTokenExpiresAt = s.clock.Now().Add(secondsMinusSafety(tok.ExpiresIn))
		s.setState(StateConnected)
		done(nil)
	})
}

func (s *Syncer) ensureFreshToken(done func(error)) {
	if s.accessToken != "" && s.clock.Now().Add(tokenSafety).Before(s.accessTokenExpiresAt) {
		done(nil)
		return
	}
	s.refreshAccessToken(done)
}

// runSyncTick drives one pass of the sync loop (token refresh, command
// poll, state-delta flush) through retry's backoff wrapper, then
// reschedules itself at pollPeriod once the pass succeeds. A 401 mid-tick
// is handled inside authedDoReauth, which pollCommands/flushStateDeltas
// call through: one forced refresh, one retry of the same request.
func (s *Syncer) runSyncTick() {
	s.retry(func(done func(error)) {
		s.syncOnce(func(err error) {
			done(err)
			if err == nil {
				s.runner.PostDelayedTask(s.runSyncTick, pollPeriod)
			}
		})
	})
}

func (s *Syncer) syncOnce(done func(error)) {
	s.ensureFreshToken(func(err error) {
		if err != nil {
			done(err)
			return
		}
		s.pollCommands(func(err error) {
			if err != nil {
				done(err)
				return
			}
			s.flushStateDeltas(done)
		})
	})
}

// pollCommands fetches the cloud's pending command queue for this device
// and feeds each one through the model/command parse-and-route path
// exactly as a local caller's command would be, with origin cloud and
// owner role (the cloud acts as the device's own owner account).
func (s *Syncer) pollCommands(done func(error)) {
	cur := s.store.Current()
	url := cur.ServiceURL + "/commands?deviceId=" + cur.DeviceID + "&state=queued"
	s.authedDoReauth(http.MethodGet, url, nil, "", func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("pollCommands", resp, err); cerr != nil {
			done(cerr)
			return
		}
		var batch struct {
			Commands []json.RawMessage `json:"commands"`
		}
		if jerr := json.Unmarshal(resp.Body, &batch); jerr != nil {
			done(errcode.New(errcode.CloudError, "pollCommands", "malformed command batch: %v", jerr))
			return
		}
		for _, raw := range batch.Commands {
			inst, perr := s.model.ParseCommandInstance(raw, command.OriginCloud, model.RoleOwner)
			if perr != nil {
				continue
			}
			s.cmds.Add(inst)
		}
		done(nil)
	})
}

// flushStateDeltas drains every recorded state change since the last
// flush and PATCHes it to the cloud, firing the ack callbacks with the
// update_id watermark on success so callers can confirm delivery.
func (s *Syncer) flushStateDeltas(done func(error)) {
	updateID, records := s.model.GetAndClearRecordedStateChanges()
	if len(records) == 0 {
		done(nil)
		return
	}
	cur := s.store.Current()
	patches := make([]map[string]any, 0, len(records))
	for _, r := range records {
		patches = append(patches, map[string]any{
			"timeMs": r.Timestamp.UnixMilli(),
			"state":  map[string]any{r.ComponentPath: r.ChangedProperties},
		})
	}
	body, err := json.Marshal(map[string]any{
		"requestTimeMs": s.clock.Now().UnixMilli(),
		"patches":       patches,
	})
	if err != nil {
		done(errcode.Wrap(errcode.InvalidPropValue, "flushStateDeltas", err))
		return
	}
	s.log.Debug("flushing state deltas", "body", string(value.PrettyJSONBytes(body)))
	url := cur.ServiceURL + "/devices/" + cur.DeviceID + "/patchState"
	s.authedDoReauth(http.MethodPatch, url, body, uuid.NewString(), func(resp transport.HttpResponse, err error) {
		if cerr := cloudCallError("flushStateDeltas", resp, err); cerr != nil {
			done(cerr)
			return
		}
		for _, cb := range s.onStateAcked {
			cb(updateID)
		}
		done(nil)
	})
}

// WatchCommandStatus arms a queue-wide observer that mirrors every
// command's lifecycle transitions back to the cloud as a status patch,
// regardless of whether the command originated locally or from the
// cloud itself.
func (s *Syncer) WatchCommandStatus() {
	s.cmds.OnAdded(func(inst *command.Instance) {
		inst.AddObserver(command.Observer{OnStateChanged: s.pushCommandStatus})
	})
}

// pushCommandStatus is fire-and-forget: a dropped status patch is
// recoverable because the cloud re-polls command state on its own
// schedule, so it is not worth routing through retry's backoff.
func (s *Syncer) pushCommandStatus(inst *command.Instance) {
	cur := s.store.Current()
	body, err := json.Marshal(map[string]any{
		"state":    inst.State.String(),
		"progress": inst.Progress,
		"results":  inst.Results,
	})
	if err != nil {
		return
	}
	url := cur.ServiceURL + "/commands/" + inst.ID
	s.authedDo(http.MethodPatch, url, body, func(transport.HttpResponse, error) {})
}

func (s *Syncer) authedDo(method, url string, body []byte, done func(transport.HttpResponse, error)) {
	s.http.Do(ctx(), transport.HttpRequest{
		Method:  method,
		URL:     url,
		Headers: map[string]string{"Authorization": "Bearer " + s.accessToken},
		Body:    body,
	}, done)
}

// authedDoReauth is authedDo plus a forced-refresh-then-retry on 401
// (spec.md's "401 triggers one forced refresh and one retry"), and an
// optional Idempotency-Key header for PATCH calls the cloud may see
// retried (a dropped ack retries the whole flush, and the 401 retry
// itself reuses the same key so the cloud recognizes it as the same
// logical request). Pass idempotencyKey == "" to omit the header.
func (s *Syncer) authedDoReauth(method, url string, body []byte, idempotencyKey string, done func(transport.HttpResponse, error)) {
	headers := func() map[string]string {
		h := map[string]string{"Authorization": "Bearer " + s.accessToken}
		if idempotencyKey != "" {
			h["Idempotency-Key"] = idempotencyKey
		}
		return h
	}
	req := func(cb func(transport.HttpResponse, error)) {
		s.http.Do(ctx(), transport.HttpRequest{Method: method, URL: url, Headers: headers(), Body: body}, cb)
	}
	req(func(resp transport.HttpResponse, err error) {
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			done(resp, err)
			return
		}
		s.refreshAccessToken(func(rerr error) {
			if rerr != nil {
				done(resp, err)
				return
			}
			req(done)
		})
	})
}

func ctx() context.Context { return context.Background() }

func secondsMinusSafety(expiresIn int64) time.Duration {
	d := time.Duration(expiresIn)*time.Second - tokenSafety
	if d < 0 {
		return 0
	}
	return d
}

// cloudCallError normalizes a transport failure or non-2xx response into
// the cloud_error{http_status} variant (§7); nil means the call
// succeeded.
func cloudCallError(op string, resp transport.HttpResponse, err error) *errcode.E {
	if err != nil {
		return errcode.Wrap(errcode.TransportError, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errcode.CloudErr(op, resp.StatusCode, nil)
	}
	return nil
}

func isInvalidGrant(resp transport.HttpResponse) bool {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false
	}
	return body.Error == "invalid_grant"
}
