package cloudsync

import (
	"net/http"
	"testing"
	"time"

	"libweave/clock"
	"libweave/command"
	"libweave/configstore"
	"libweave/model"
	"libweave/runner"
	"libweave/transport"
)

func newTestSyncer(t *testing.T) (*Syncer, *transport.FakeHTTPClient, *transport.FakeNetwork, *runner.FakeRunner, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(time.Unix(1000, 0))
	r := runner.NewFake(c)
	store, err := configstore.Load(configstore.NewFake())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tx := store.Begin().SetName("device")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	m := model.New(r, c)
	cmds := command.New(r, c, 0, 0)
	httpc := transport.NewFakeHTTPClient(r)
	net := transport.NewFakeNetwork()
	s := New(httpc, net, store, m, cmds, r, c, nil)
	return s, httpc, net, r, c
}

func TestNew_NoRefreshToken_StartsUnregistered(t *testing.T) {
	s, _, _, _, _ := newTestSyncer(t)
	if s.State() != StateUnregistered {
		t.Fatalf("got %v, want unregistered", s.State())
	}
}

func TestRegisterDevice_HappyPath(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)

	httpc.Enqueue(transport.HttpResponse{StatusCode: 200}, nil) // ticket patch
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(
		`{"deviceId":"CLOUD_ID","robotAccountEmail":"robot@example.com","robotAccountAuthorizationCode":"code123"}`)}, nil) // finalize
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(
		`{"access_token":"tok1","refresh_token":"refresh1","expires_in":3600}`)}, nil) // oauth exchange

	var gotErr error
	var gotDeviceID string
	called := false
	s.RegisterDevice(RegistrationData{Ticket: "tick1", OAuthClientID: "client1"}, func(deviceID string, err error) {
		called = true
		gotDeviceID = deviceID
		gotErr = err
	})
	r.RunUntilIdle()

	if !called {
		t.Fatal("done callback never fired")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if gotDeviceID != "CLOUD_ID" {
		t.Fatalf("deviceID = %q, want CLOUD_ID", gotDeviceID)
	}
	if s.State() != StateConnected {
		t.Fatalf("got state %v, want connected", s.State())
	}
	if s.store.Current().RefreshToken != "refresh1" {
		t.Fatalf("refresh token not persisted: %q", s.store.Current().RefreshToken)
	}
	if s.store.Current().DeviceID != "CLOUD_ID" {
		t.Fatalf("device id not persisted: %q", s.store.Current().DeviceID)
	}
	if len(httpc.Requests) != 4 {
		t.Fatalf("got %d requests, want 4 (ticket patch, finalize, oauth exchange, first sync poll)", len(httpc.Requests))
	}
}

func TestRegisterDevice_FinalizeFailureIsNotRetried(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)

	httpc.Enqueue(transport.HttpResponse{StatusCode: 200}, nil)
	httpc.Enqueue(transport.HttpResponse{StatusCode: 400}, nil)

	var gotErr error
	s.RegisterDevice(RegistrationData{Ticket: "tick1", OAuthClientID: "client1"}, func(deviceID string, err error) {
		gotErr = err
	})
	r.RunUntilIdle()

	if gotErr == nil {
		t.Fatal("expected error")
	}
	if s.State() != StateUnregistered {
		t.Fatalf("got %v, want unregistered", s.State())
	}
	if len(httpc.Requests) != 2 {
		t.Fatalf("got %d requests, want exactly 2 (no retry)", len(httpc.Requests))
	}
}

func TestRunSyncTick_QuietTickPollsOnlyAndReschedules(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)
	s.accessToken = "tok"
	s.accessTokenExpiresAt = s.clock.Now().Add(time.Hour)
	s.setState(StateConnected)

	// no pending commands, no state deltas: one quiet tick.
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(`{"commands":[]}`)}, nil)

	s.runSyncTick()
	r.RunUntilIdle()

	if len(httpc.Requests) != 1 {
		t.Fatalf("got %d requests, want 1 (command poll only, no deltas to flush)", len(httpc.Requests))
	}
	if httpc.Requests[0].Method != http.MethodGet {
		t.Fatalf("got method %q, want GET", httpc.Requests[0].Method)
	}

	if r.Pending() == 0 {
		t.Fatal("expected the next periodic tick to be scheduled")
	}
}

func TestRunSyncTick_RetriesWithBackoffOnFailure(t *testing.T) {
	s, httpc, _, r, c := newTestSyncer(t)
	s.accessToken = "tok"
	s.accessTokenExpiresAt = s.clock.Now().Add(time.Hour)
	s.setState(StateConnected)

	httpc.Enqueue(transport.HttpResponse{StatusCode: 500}, nil)
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(`{"commands":[]}`)}, nil)

	s.runSyncTick()
	r.RunUntilIdle()

	if len(httpc.Requests) != 1 {
		t.Fatalf("got %d requests before backoff elapses, want 1", len(httpc.Requests))
	}

	_ = c
	r.Advance(backoffMax)

	if len(httpc.Requests) < 2 {
		t.Fatalf("got %d requests after advancing past backoff, want retry to have fired", len(httpc.Requests))
	}
}

func TestOnConnectivityChanged_RegainingOnlineTriggersImmediateRefresh(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)
	tx := s.store.Begin().SetRefreshToken("refresh1")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	s.state = StateDisconnected
	s.online = false

	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(
		`{"access_token":"tok2","expires_in":3600}`)}, nil)
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(`{"commands":[]}`)}, nil)

	s.onConnectivityChanged(transport.Online)
	r.RunUntilIdle()

	if s.State() != StateConnected {
		t.Fatalf("got %v, want connected", s.State())
	}
	if len(httpc.Requests) < 1 {
		t.Fatal("expected a token refresh call after regaining connectivity")
	}
}

func TestRefreshAccessToken_InvalidGrantDropsToInvalidCredentials(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)
	tx := s.store.Begin().SetRefreshToken("stale")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	httpc.Enqueue(transport.HttpResponse{StatusCode: 400, Body: []byte(`{"error":"invalid_grant"}`)}, nil)

	var gotErr error
	s.refreshAccessToken(func(err error) { gotErr = err })
	r.RunUntilIdle()

	if gotErr == nil {
		t.Fatal("expected error")
	}
	if s.State() != StateInvalidCredentials {
		t.Fatalf("got %v, want invalid_credentials", s.State())
	}
	if s.store.Current().RefreshToken != "" {
		t.Fatal("expected refresh token to be cleared")
	}
}

func TestSetPairingInfo_SessionExpiresAfterTTL(t *testing.T) {
	s, _, _, _, c := newTestSyncer(t)

	s.SetPairingInfo(PairingInfo{SessionID: "sess1", Mode: "local", EmbeddedCode: "1234"})
	if got := s.Pairing(); got.SessionID != "sess1" {
		t.Fatalf("SessionID = %q, want sess1", got.SessionID)
	}

	c.Advance(pairingSessionTTL - time.Second)
	if got := s.Pairing(); got.SessionID != "sess1" {
		t.Fatalf("session expired early: SessionID = %q, want sess1", got.SessionID)
	}

	c.Advance(2 * time.Second)
	if got := s.Pairing(); got.SessionID != "" {
		t.Fatalf("SessionID = %q, want cleared after TTL", got.SessionID)
	}
}

func TestPollCommands_401TriggersOneForcedRefreshAndOneRetry(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)
	s.accessToken = "stale-tok"
	s.accessTokenExpiresAt = s.clock.Now().Add(time.Hour)
	s.setState(StateConnected)
	tx := s.store.Begin().SetRefreshToken("refresh1")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	httpc.Enqueue(transport.HttpResponse{StatusCode: 401}, nil)                                                 // command poll, stale token
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(`{"access_token":"fresh-tok","expires_in":3600}`)}, nil) // forced refresh
	httpc.Enqueue(transport.HttpResponse{StatusCode: 200, Body: []byte(`{"commands":[]}`)}, nil)                // command poll, retried

	var gotErr error
	s.pollCommands(func(err error) { gotErr = err })
	r.RunUntilIdle()

	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if len(httpc.Requests) != 3 {
		t.Fatalf("got %d requests, want exactly 3 (poll, refresh, one retry)", len(httpc.Requests))
	}
	if s.accessToken != "fresh-tok" {
		t.Fatalf("access token = %q, want fresh-tok", s.accessToken)
	}
	if auth := httpc.Requests[2].Headers["Authorization"]; auth != "Bearer fresh-tok" {
		t.Fatalf("retried request authorization = %q, want Bearer fresh-tok", auth)
	}
}

func TestPushCommandStatus_FiresOnEveryStateTransition(t *testing.T) {
	s, httpc, _, r, _ := newTestSyncer(t)
	s.accessToken = "tok"
	s.WatchCommandStatus()

	inst := &command.Instance{ID: "cmd-1", Name: "base.ping", State: command.StateQueued}
	s.cmds.Add(inst)
	_ = inst.SetProgress(nil)
	_ = inst.Complete(nil)
	r.RunUntilIdle()

	if len(httpc.Requests) != 2 {
		t.Fatalf("got %d requests, want 2 (one per state transition)", len(httpc.Requests))
	}
	if httpc.Requests[0].URL != s.store.Current().ServiceURL+"/commands/cmd-1" {
		t.Fatalf("unexpected url %q", httpc.Requests[0].URL)
	}
}
