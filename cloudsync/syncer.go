package cloudsync

import (
	"time"

	"libweave/clock"
	"libweave/command"
	"libweave/configstore"
	"libweave/logging"
	"libweave/model"
	"libweave/runner"
	"libweave/transport"
)

const (
	backoffBase       = time.Second
	backoffMax        = 5 * time.Minute
	pollPeriod        = 30 * time.Second
	tokenSafety       = 60 * time.Second
	pairingSessionTTL = 5 * time.Minute
)

// StateChangeCallback fires whenever the GcdState changes.
type StateChangeCallback func(GcdState)

// StateAckCallback fires when a previously-flushed update_id has been
// acknowledged by the server.
type StateAckCallback func(updateID uint64)

// PairingChangeCallback fires whenever the in-progress local pairing
// session's info changes.
type PairingChangeCallback func(PairingInfo)

// Syncer owns the device's registration state machine and cloud sync
// loop. It never blocks: every cloud call is issued through the
// transport.HttpClient provider and resumes on the task runner.
type Syncer struct {
	http    transport.HttpClient
	network transport.Network
	store   *configstore.Store
	model   *model.Manager
	cmds    *command.Queue
	runner  runner.TaskRunner
	clock   clock.Clock
	log     *logging.Logger

	state   GcdState
	pairing PairingInfo

	accessToken          string
	accessTokenExpiresAt time.Time

	attempt     int
	pollPending bool
	online      bool
	started     bool

	onStateChanged   []StateChangeCallback
	onStateAcked     []StateAckCallback
	onPairingChanged []PairingChangeCallback
}

// New returns a Syncer in StateDisconnected when a refresh token is
// stored, and in StateUnregistered otherwise. Call Start once providers
// and settings are ready. cmds is the same command.Queue the embedder
// routes local commands through: cloud-originated commands are added to
// it exactly like local ones, and every instance's lifecycle is mirrored
// back to the cloud as a status patch. log may be nil, in which case the
// syncer logs nowhere.
func New(http transport.HttpClient, network transport.Network, store *configstore.Store, m *model.Manager, cmds *command.Queue, r runner.TaskRunner, c clock.Clock, log *logging.Logger) *Syncer {
	if log == nil {
		log = logging.Discard()
	}
	s := &Syncer{http: http, network: network, store: store, model: m, cmds: cmds, runner: r, clock: c, log: log, online: true}
	if store.Current().RefreshToken != "" {
		s.state = StateDisconnected
	} else {
		s.state = StateUnregistered
	}
	return s
}

func (s *Syncer) OnStateChanged(cb StateChangeCallback) { s.onStateChanged = append(s.onStateChanged, cb) }
func (s *Syncer) OnStateAcked(cb StateAckCallback)      { s.onStateAcked = append(s.onStateAcked, cb) }
func (s *Syncer) OnPairingChanged(cb PairingChangeCallback) {
	s.onPairingChanged = append(s.onPairingChanged, cb)
}

func (s *Syncer) State() GcdState { return s.state }

// Pairing returns the current local pairing session info, or the zero
// value once the session's ExpiresAt has passed.
func (s *Syncer) Pairing() PairingInfo {
	if s.pairingExpired() {
		s.SetPairingInfo(PairingInfo{})
	}
	return s.pairing
}

func (s *Syncer) pairingExpired() bool {
	return s.pairing.SessionID != "" && !s.pairing.ExpiresAt.IsZero() && s.clock.Now().After(s.pairing.ExpiresAt)
}

// SetPairingInfo is called by the local pairing transport (Wifi/BT
// onboarding, out of this package's scope) as a session progresses. A
// non-empty SessionID with a zero ExpiresAt is stamped with a fresh
// pairingSessionTTL deadline; pass the zero PairingInfo to clear a
// session outright.
func (s *Syncer) SetPairingInfo(p PairingInfo) {
	if p.SessionID != "" && p.ExpiresAt.IsZero() {
		p.ExpiresAt = s.clock.Now().Add(pairingSessionTTL)
	}
	s.pairing = p
	for _, cb := range s.onPairingChanged {
		cb(p)
	}
}

func (s *Syncer) setState(next GcdState) {
	if s.state == next {
		return
	}
	s.log.Info("gcd state changed", "from", s.state.String(), "to", next.String())
	s.state = next
	for _, cb := range s.onStateChanged {
		cb(next)
	}
}

// Start watches connectivity transitions: going online cancels any
// pending backoff wait and retries immediately (4.H). Safe to call again
// after RegisterDevice transitions the syncer from unregistered to
// connected; the connectivity watch and command-status mirror are only
// armed once.
func (s *Syncer) Start() {
	if s.started {
		return
	}
	s.started = true
	s.watchConnectivity()
	s.WatchCommandStatus()
	if s.state == StateDisconnected {
		s.setState(StateConnecting)
		s.refreshAccessToken(func(error) { s.runSyncTick() })
	}
}

// watchConnectivity forwards Network's connectivity channel onto the task
// runner for the syncer's lifetime: the channel read itself is the
// provider-side non-blocking boundary, exactly like the HTTP client's
// goroutine-and-post pattern.
func (s *Syncer) watchConnectivity() {
	if s.network == nil {
		return
	}
	ch := s.network.ConnectionChanged()
	go func() {
		for st := range ch {
			st := st
			s.runner.PostTask(func() { s.onConnectivityChanged(st) })
		}
	}()
}

func (s *Syncer) onConnectivityChanged(st transport.ConnectivityState) {
	wasOnline := s.online
	s.online = st == transport.Online
	if !wasOnline && s.online {
		s.attempt = 0
		if s.state == StateConnected || s.state == StateConnecting {
			s.runSyncTick()
		}
	}
	if s.online && s.state == StateDisconnected {
		s.setState(StateConnecting)
		s.refreshAccessToken(func(error) { s.runSyncTick() })
	}
}

// retry calls op; on failure it reschedules itself with exponential
// backoff (full jitter), capped, unless the syncer has since gone
// offline (connectivity will retry immediately once back online).
func (s *Syncer) retry(op func(done func(error))) {
	op(func(err error) {
		if err == nil {
			s.attempt = 0
			return
		}
		if !s.online {
			return
		}
		delay := transport.Backoff(s.attempt, backoffBase, backoffMax, fullJitter)
		s.log.Warn("sync op failed, backing off", "err", err, "attempt", s.attempt, "delay", delay)
		s.attempt++
		s.runner.PostDelayedTask(func() { s.retry(op) }, delay)
	})
}

func fullJitter(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return pseudoRandom(n)
}

// pseudoRandom returns a deterministic-looking value in [0, n). Cloud
// retry timing has no correctness requirement on true randomness, only
// on spreading retries out, so a cheap time-seeded LCG avoids pulling in
// crypto/rand for a jitter knob.
func pseudoRandom(n int64) int64 {
	seed := time.Now().UnixNano()
	seed = seed*6364136223846793005 + 1442695040888963407
	if seed < 0 {
		seed = -seed
	}
	return seed % n
}
