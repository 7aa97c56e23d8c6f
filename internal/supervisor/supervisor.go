// Package supervisor drives the lifecycle of every session record: it opens
// peers, reacts to their termination, and recreates them while the operator
// still wants to be connected.
//
// All handlers (requests, peer events, timer callbacks) run under one mutex,
// so a record is never mutated in parallel. Continuations carry the peer
// generation they were created for and bail out once it is no longer current.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/life-stream-dev/afk-bridge/internal/clock"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// ErrStopped is returned once Shutdown has run.
var ErrStopped = errors.New("bridge is shutting down")

type KeepAliveOptions struct {
	Enabled      bool
	LookInterval time.Duration
	JumpInterval time.Duration
}

type ManualOptions struct {
	Enabled      bool
	JumpInterval time.Duration
	AutoStop     time.Duration
	MoveDuration time.Duration
}

type Options struct {
	// MultiSlot allows slot 2; when false every request targets slot 1.
	MultiSlot bool
	// SpawnBanner is sent as a chat line after joining. Empty disables it.
	SpawnBanner     string
	ChatRelayWindow time.Duration
	KeepAlive       KeepAliveOptions
	Manual          ManualOptions
	Policy          Policy
	// Clock defaults to the real clock.
	Clock clock.Clock
	// Rand defaults to a randomly seeded source.
	Rand *rand.Rand
}

// ActionError is a failed in-world action. Timer-driven actions only log it.
type ActionError struct {
	Action peer.ActionKind
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// generation is one peer instance of a record. finalized flips on the first
// terminal event, or when the supervisor tears the peer down itself.
type generation struct {
	id        uint64
	rec       *session.Record
	handle    peer.Handle
	finalized bool
}

type pendingReconnect struct {
	timer clock.Timer
}

// slotState holds the timers the supervisor owns for one record.
type slotState struct {
	gen       *generation
	keepAlive clock.Timer
	reconnect *pendingReconnect
}

type Supervisor struct {
	mu       sync.Mutex
	store    *session.Store
	dialer   peer.Dialer
	notifier notify.Notifier
	relay    *notify.RateLimiter
	clock    clock.Clock
	rnd      *rand.Rand
	opts     Options

	ctx     context.Context
	cancel  context.CancelFunc
	states  map[*session.Record]*slotState
	nextGen uint64
	closed  bool
}

// New returns a supervisor over store. notifier may be nil.
func New(store *session.Store, dialer peer.Dialer, notifier notify.Notifier, opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:    store,
		dialer:   dialer,
		notifier: notifier,
		relay:    notify.NewRateLimiter(opts.ChatRelayWindow),
		clock:    opts.Clock,
		rnd:      opts.Rand,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		states:   make(map[*session.Record]*slotState),
	}
}

func (s *Supervisor) slot(slot int) int {
	if !s.opts.MultiSlot {
		return 1
	}
	return session.ClampSlot(slot)
}

// Slot returns the slot a request naming slot is served on.
func (s *Supervisor) Slot(slot int) int {
	return s.slot(slot)
}

func (s *Supervisor) state(rec *session.Record) *slotState {
	st, ok := s.states[rec]
	if !ok {
		st = &slotState{}
		s.states[rec] = st
	}
	return st
}

// current reports whether g is still the live generation of its record.
func (s *Supervisor) current(g *generation) bool {
	return !g.finalized && s.state(g.rec).gen == g
}

func (s *Supervisor) emit(rec *session.Record, ev notify.Event) {
	ev.Operator = string(rec.Operator)
	ev.Slot = rec.Slot
	ev.Time = s.clock.Now()
	s.notifier.Notify(ev)
}

// Configure stores the connection target for a slot. It never connects.
func (s *Supervisor) Configure(op session.Operator, slot int, host string, port int, identity string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return session.InvalidArgument("host is empty")
	}
	if port <= 0 || port > 65535 {
		return session.InvalidArgument("port %d out of range", port)
	}
	if err := validIdentity(identity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.store.GetOrCreate(op, s.slot(slot))
	rec.Host, rec.Port = host, port
	rec.Identity, rec.BaseIdentity = identity, identity
	logger.InfoF("[%s] Configured target %s", rec.Label(), rec.Target())
	return nil
}

// Connect opens a peer for a configured slot.
func (s *Supervisor) Connect(op session.Operator, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok || !rec.Configured() {
		return session.ErrNotConfigured
	}
	if s.state(rec).gen != nil {
		return session.ErrAlreadyConnected
	}
	rec.DesiredConnected = true
	rec.Attempts = 0
	s.open(rec)
	return nil
}

// Disconnect tears the peer down and clears the operator's intent, so nothing
// reconnects it. A pending reconnect with no peer is cancelled as well.
func (s *Supervisor) Disconnect(op session.Operator, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok {
		return session.ErrNotConnected
	}
	st := s.state(rec)
	if st.gen == nil && st.reconnect == nil {
		return session.ErrNotConnected
	}

	rec.DesiredConnected = false
	rec.State = session.Terminating
	s.stopReconnect(st)
	s.teardown(rec, st)
	rec.State = session.Disconnected
	rec.Attempts = 0
	logger.InfoF("[%s] Disconnected by operator", rec.Label())
	s.emit(rec, notify.Event{Kind: notify.KindDisconnected, Target: rec.Target().Address(), Identity: rec.Identity})
	return nil
}

// SetJoinCommand sets the chat line sent after every join. Empty clears it.
func (s *Supervisor) SetJoinCommand(op session.Operator, slot int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.store.GetOrCreate(op, s.slot(slot))
	rec.JoinCommand = strings.TrimSpace(text)
	return nil
}

// SetReconnectDelay changes the delay used by the next reconnect decision.
func (s *Supervisor) SetReconnectDelay(op session.Operator, slot int, d time.Duration) error {
	if d <= 0 {
		return session.InvalidArgument("reconnect delay must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.store.GetOrCreate(op, s.slot(slot))
	rec.ReconnectDelay = d
	return nil
}

// ForceReconnect drops the current peer without triggering its own reconnect
// and connects again right away under a fresh identity. It returns that identity.
func (s *Supervisor) ForceReconnect(op session.Operator, slot int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStopped
	}
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok || !rec.Configured() {
		return "", session.ErrNotConfigured
	}
	st := s.state(rec)
	s.stopReconnect(st)
	s.teardown(rec, st)

	rec.Identity = RandomIdentity(rec.BaseIdentity, s.rnd.IntN)
	rec.DesiredConnected = true
	rec.Attempts = 0
	logger.InfoF("[%s] Forced reconnect as %s", rec.Label(), rec.Identity)
	s.open(rec)
	return rec.Identity, nil
}

// RenameIdentity changes the presence name. A live or joining peer, or a
// pending reconnect, is replaced by a new join under the new name; it reports
// whether that happened.
func (s *Supervisor) RenameIdentity(op session.Operator, slot int, identity string) (bool, error) {
	if err := validIdentity(identity); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok {
		return false, session.ErrNotConfigured
	}
	rec.Identity, rec.BaseIdentity = identity, identity

	st := s.state(rec)
	if s.closed || !rec.Configured() {
		return false, nil
	}
	switch {
	case st.gen != nil:
		s.teardown(rec, st)
	case st.reconnect != nil && rec.DesiredConnected:
		s.stopReconnect(st)
		rec.Attempts = 0
	default:
		return false, nil
	}
	logger.InfoF("[%s] Renamed to %s, reconnecting", rec.Label(), identity)
	s.open(rec)
	return true, nil
}

// Shutdown stops every timer and closes every peer without reconnecting.
func (s *Supervisor) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for rec, st := range s.states {
		s.stopReconnect(st)
		if h := rec.Peer; h != nil {
			s.stopActivity(rec, st)
			if st.gen != nil {
				st.gen.finalized = true
				st.gen = nil
			}
			rec.Peer = nil
			rec.ConnectedSince = time.Time{}
			if err := h.Close(); err != nil && !errors.Is(err, peer.ErrClosed) {
				errs = append(errs, fmt.Errorf("close %s: %w", rec.Label(), err))
			}
		}
		rec.DesiredConnected = false
		rec.State = session.Disconnected
	}
	s.cancel()
	return errors.Join(errs...)
}

// Invoke shuts the supervisor down as a cleanup hook.
func (s *Supervisor) Invoke(ctx context.Context) error {
	logger.Info("Closing all sessions")
	return s.Shutdown(ctx)
}

// open starts a new generation for rec. Caller holds s.mu.
func (s *Supervisor) open(rec *session.Record) {
	st := s.state(rec)
	s.nextGen++
	g := &generation{id: s.nextGen, rec: rec}
	st.gen = g

	rec.Generation = g.id
	rec.DisplayTag = uuid.NewString()
	rec.State = session.Connecting

	events := peer.Events{
		OnReady:   func() { s.onReady(g) },
		OnChat:    func(speaker, text string) { s.onChat(g, speaker, text) },
		OnClosed:  func() { s.onTerminal(g, nil) },
		OnFaulted: func(err error) { s.onTerminal(g, err) },
	}
	logger.InfoF("[%s] Connecting to %s (generation %d)", rec.Label(), rec.Target(), g.id)
	h, err := s.dialer.Open(s.ctx, rec.Target(), events)
	if err != nil {
		g.finalized = true
		s.terminated(g, fmt.Errorf("open peer: %w", err))
		return
	}
	g.handle = h
	rec.Peer = h
}

// teardown finalizes the current generation and closes its peer. Caller holds s.mu.
func (s *Supervisor) teardown(rec *session.Record, st *slotState) {
	s.stopActivity(rec, st)
	g := st.gen
	st.gen = nil
	h := rec.Peer
	rec.Peer = nil
	rec.ConnectedSince = time.Time{}
	if g == nil {
		return
	}
	g.finalized = true
	if h != nil {
		if err := h.Close(); err != nil && !errors.Is(err, peer.ErrClosed) {
			logger.WarnF("[%s] Error while closing peer: %v", rec.Label(), err)
		}
	}
}

func (s *Supervisor) stopActivity(rec *session.Record, st *slotState) {
	if st.keepAlive != nil {
		st.keepAlive.Stop()
		st.keepAlive = nil
	}
	if rec.ManualLoop != nil {
		rec.ManualLoop.Stop()
		rec.ManualLoop = nil
	}
}

func (s *Supervisor) stopReconnect(st *slotState) {
	if st.reconnect != nil {
		st.reconnect.timer.Stop()
		st.reconnect = nil
	}
}

func (s *Supervisor) onReady(g *generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := g.rec
	if !s.current(g) || !rec.DesiredConnected {
		logger.DebugF("[%s] Ignoring ready from stale generation %d", rec.Label(), g.id)
		return
	}

	rec.State = session.Connected
	rec.ConnectedSince = s.clock.Now()
	rec.Attempts = 0
	rec.LastError = ""
	logger.InfoF("[%s] Joined %s as %s", rec.Label(), rec.Target().Address(), rec.Identity)

	for _, line := range []string{s.opts.SpawnBanner, rec.JoinCommand} {
		if line == "" {
			continue
		}
		if err := g.handle.SendChatLine(line); err != nil {
			logger.WarnF("[%s] Could not send join line: %v", rec.Label(), err)
		}
	}
	s.startKeepAlive(g)
	s.emit(rec, notify.Event{Kind: notify.KindConnected, Target: rec.Target().Address(), Identity: rec.Identity})
}

func (s *Supervisor) onChat(g *generation, speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := g.rec
	if !s.current(g) {
		return
	}
	if !s.relay.Allow(rec.Label(), s.clock.Now()) {
		return
	}
	s.emit(rec, notify.Event{Kind: notify.KindChat, Speaker: speaker, Text: text, Identity: rec.Identity})
}

func (s *Supervisor) onTerminal(g *generation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.finalized {
		logger.DebugF("[%s] Ignoring terminal event for finished generation %d", g.rec.Label(), g.id)
		return
	}
	g.finalized = true
	s.terminated(g, err)
}

// terminated handles the end of generation g. err is nil for a graceful close.
// Caller holds s.mu and has already finalized g.
func (s *Supervisor) terminated(g *generation, err error) {
	rec := g.rec
	st := s.state(rec)
	if st.gen != g {
		return
	}
	s.stopActivity(rec, st)
	st.gen = nil
	rec.Peer = nil
	rec.ConnectedSince = time.Time{}

	if err != nil {
		fault := &session.PeerFaultError{Operator: rec.Operator, Slot: rec.Slot, Err: err}
		rec.LastError = err.Error()
		logger.ErrorF("[%s] %v", rec.Label(), fault)
		s.emit(rec, notify.Event{Kind: notify.KindFault, Target: rec.Target().Address(), Error: err.Error()})
	} else {
		logger.InfoF("[%s] Connection closed", rec.Label())
	}

	if !rec.DesiredConnected || s.closed {
		rec.State = session.Disconnected
		return
	}
	rec.State = session.Faulted

	if err != nil && s.opts.Policy.FaultPolicy == FaultStop {
		s.giveUp(rec)
		return
	}
	rec.Attempts++
	if s.opts.Policy.Exhausted(rec.Attempts) {
		s.giveUp(rec)
		return
	}

	delay := s.opts.Policy.Delay(rec.ReconnectDelay, rec.Attempts, s.rnd.Float64)
	pending := &pendingReconnect{}
	pending.timer = s.clock.AfterFunc(delay, func() { s.reconnect(rec, pending) })
	st.reconnect = pending
	logger.InfoF("[%s] Reconnecting in %s (attempt %d)", rec.Label(), delay, rec.Attempts)
	s.emit(rec, notify.Event{
		Kind:    notify.KindReconnecting,
		Target:  rec.Target().Address(),
		DelayMS: delay.Milliseconds(),
		Attempt: rec.Attempts,
	})
}

func (s *Supervisor) giveUp(rec *session.Record) {
	attempts := rec.Attempts
	rec.DesiredConnected = false
	rec.State = session.Disconnected
	rec.Attempts = 0
	logger.WarnF("[%s] Giving up reconnecting", rec.Label())
	s.emit(rec, notify.Event{Kind: notify.KindGaveUp, Target: rec.Target().Address(), Attempt: attempts, Error: rec.LastError})
}

// reconnect fires after the delay. Intent is read now, not when scheduled.
func (s *Supervisor) reconnect(rec *session.Record, pending *pendingReconnect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(rec)
	if st.reconnect != pending {
		return
	}
	st.reconnect = nil
	if !rec.DesiredConnected || s.closed || st.gen != nil {
		return
	}
	if s.opts.Policy.IdentityPolicy == IdentityRandomize {
		rec.Identity = RandomIdentity(rec.BaseIdentity, s.rnd.IntN)
	}
	s.open(rec)
}

// Snapshot returns the records of one operator.
func (s *Supervisor) Snapshot(op session.Operator) ([]session.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.store.Get(op)
	if !ok {
		return nil, false
	}
	return s.snapshots(records), true
}

// Snapshots returns every record ordered by operator and slot.
func (s *Supervisor) Snapshots() []session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots(s.store.All())
}

func (s *Supervisor) snapshots(records []*session.Record) []session.Snapshot {
	now := s.clock.Now()
	out := make([]session.Snapshot, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Snapshot(now))
	}
	return out
}

func validIdentity(identity string) error {
	switch {
	case strings.TrimSpace(identity) == "":
		return session.InvalidArgument("name is empty")
	case strings.ContainsAny(identity, " \t\r\n"):
		return session.InvalidArgument("name must not contain spaces")
	case utf8.RuneCountInString(identity) > maxIdentityLen:
		return session.InvalidArgument("name longer than %d characters", maxIdentityLen)
	}
	return nil
}
