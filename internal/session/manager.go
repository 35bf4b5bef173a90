// Package session owns the real-time connection lifecycle: one
// transport session per authenticated identity, driven through an
// explicit state machine with bounded retry, heartbeat, and
// app-lifecycle handling.
//
// Every asynchronous callback (dial result, inbound event, timer)
// captures the generation counter active when it was issued and
// no-ops if the session has since moved on. This fences stale
// callbacks from superseded connection attempts, which would
// otherwise clobber the state built by a newer, successful one.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	chaterrors "github.com/alexjbarnes/chatlink/internal/errors"
	"github.com/alexjbarnes/chatlink/internal/models"
	"github.com/alexjbarnes/chatlink/internal/presence"
	"github.com/alexjbarnes/chatlink/internal/transport"
	"github.com/coder/websocket"
)

// State is the connection lifecycle state.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateBackgrounded
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackgrounded:
		return "backgrounded"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultBackgroundTimeout = 5 * time.Minute
	defaultRetryBaseDelay    = 1 * time.Second
	defaultRetryStep         = 500 * time.Millisecond
	defaultMaxRetries        = 5
	defaultRecoveryInterval  = 5 * time.Second
	defaultTypingTimeout     = 3 * time.Second

	// teardownEmitTimeout bounds the courtesy "going offline" write on
	// logout and identity switch so a dead peer cannot stall teardown.
	teardownEmitTimeout = 2 * time.Second
)

// Store is the durable slice of state the manager needs: the persisted
// identity used for reconnects that outlive the process.
type Store interface {
	Identity() (*models.Identity, error)
	SetIdentity(id models.Identity) error
	ClearIdentity() error
}

// DialFunc opens a transport connection. Swapped for a mock in tests.
type DialFunc func(ctx context.Context, url string) (transport.Conn, error)

// Options configures a Manager. Zero values take the defaults above.
type Options struct {
	URL               string
	HeartbeatInterval time.Duration
	BackgroundTimeout time.Duration
	RetryBaseDelay    time.Duration
	RetryStep         time.Duration
	MaxRetries        int
	RecoveryInterval  time.Duration
	TypingTimeout     time.Duration
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = defaultHeartbeatInterval
	}

	if o.BackgroundTimeout <= 0 {
		o.BackgroundTimeout = defaultBackgroundTimeout
	}

	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}

	if o.RetryStep < 0 {
		o.RetryStep = defaultRetryStep
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}

	if o.RecoveryInterval <= 0 {
		o.RecoveryInterval = defaultRecoveryInterval
	}

	if o.TypingTimeout <= 0 {
		o.TypingTimeout = defaultTypingTimeout
	}
}

// Manager drives the connection state machine. It exclusively owns the
// transport session; no other component opens or closes it.
type Manager struct {
	logger  *slog.Logger
	opts    Options
	store   Store
	tracker *presence.Tracker
	dial    DialFunc

	mu         sync.Mutex
	state      State
	generation uint64
	retryCount int
	identity   *models.Identity
	ts         *transport.Session
	connCancel context.CancelFunc

	heartbeatTimer  *time.Timer
	backgroundTimer *time.Timer
	retryTimer      *time.Timer
	recoveryTimer   *time.Timer
	typingTimers    map[string]*time.Timer

	onMessage  []func(models.Message)
	onTyping   []func(chatID string, typing bool)
	onState    []func(State)
	onChatList []func(models.ChatListUpdate)
	onRead     []func(models.ReadReceipt)
}

// NewManager creates a manager. It does not connect; call StartSession.
func NewManager(opts Options, store Store, tracker *presence.Tracker, logger *slog.Logger) *Manager {
	opts.applyDefaults()

	return &Manager{
		logger:       logger,
		opts:         opts,
		store:        store,
		tracker:      tracker,
		dial:         transport.Dial,
		state:        StateInit,
		typingTimers: make(map[string]*time.Timer),
	}
}

// StartSession binds the session to an identity and connects. A live
// session for a different identity is torn down first; a live session
// for the same identity is left alone.
func (m *Manager) StartSession(identity models.Identity) error {
	m.mu.Lock()

	if m.identity != nil && m.identity.ID == identity.ID && m.isActiveLocked() {
		m.mu.Unlock()
		return chaterrors.ErrSessionActive
	}

	if m.isActiveLocked() || m.ts != nil {
		oldID := ""
		if m.identity != nil {
			oldID = m.identity.ID
		}

		m.logger.Info("replacing session for new identity",
			slog.String("old_id", oldID),
			slog.String("new_id", identity.ID),
		)
		m.teardownLocked(true)
		m.tracker.Clear()
	}

	m.identity = &identity
	m.generation++
	gen := m.generation
	m.retryCount = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	// Best-effort: a store failure only means the session will not
	// survive a cold start, not that it cannot start now.
	if err := m.store.SetIdentity(identity); err != nil {
		m.logger.Warn("failed to persist identity", slog.String("error", err.Error()))
	}

	go m.connect(gen, identity)

	return nil
}

// EndSession is the explicit logout path: notify the peer, close the
// transport, cancel every timer, clear presence, and remove the
// persisted identity. Idempotent when already disconnected.
func (m *Manager) EndSession() {
	m.mu.Lock()
	m.teardownLocked(true)
	m.identity = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.tracker.Clear()

	if err := m.store.ClearIdentity(); err != nil {
		m.logger.Warn("failed to remove persisted identity", slog.String("error", err.Error()))
	}
}

// Shutdown closes the session without logging out: the persisted
// identity survives so the next start reconnects automatically.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.teardownLocked(true)
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()
}

// SessionState returns the current lifecycle state.
func (m *Manager) SessionState() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Connected reports whether the transport is live. A backgrounded
// session with an open transport counts: it can resume in place.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state == StateConnected || (m.state == StateBackgrounded && m.ts != nil)
}

// Authenticated reports whether the session is bound to an identity.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.identity != nil
}

// EnsureConnected reconnects from the persisted identity when the
// session is idle. Used by the notification engine when a push payload
// arrives while the transport is cold. No-op when a session is already
// live or connecting, or when no identity is persisted.
func (m *Manager) EnsureConnected() {
	m.mu.Lock()
	if m.isActiveLocked() {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	id, err := m.store.Identity()
	if err != nil {
		m.logger.Warn("failed to read persisted identity", slog.String("error", err.Error()))
		return
	}

	if id == nil {
		m.logger.Debug("no persisted identity, staying disconnected")
		return
	}

	m.mu.Lock()

	if m.isActiveLocked() {
		m.mu.Unlock()
		return
	}

	m.identity = id
	m.generation++
	gen := m.generation
	m.retryCount = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.connect(gen, *id)
}

// Background handles the app moving to the background: tell the peer
// so it can downgrade presence, stop the heartbeat, and arm the
// inactivity timer that will close the transport if the app stays
// backgrounded too long.
func (m *Manager) Background() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return
	}

	gen := m.generation

	if m.ts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownEmitTimeout)
		if err := m.ts.Emit(ctx, transport.EventAppBackground, nil); err != nil {
			m.logger.Debug("background signal failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	stopTimer(&m.heartbeatTimer)
	m.setStateLocked(StateBackgrounded)

	m.backgroundTimer = time.AfterFunc(m.opts.BackgroundTimeout, func() {
		m.backgroundExpired(gen)
	})
}

// Foreground handles the app returning to the foreground. Before the
// inactivity timer fires the session resumes in place (or reconnects
// if the transport dropped meanwhile); after expiry the transport is
// already closed and a full reconnect runs from the persisted identity.
func (m *Manager) Foreground() {
	m.mu.Lock()

	if m.state != StateBackgrounded {
		disconnected := m.state == StateDisconnected
		m.mu.Unlock()

		if disconnected {
			m.EnsureConnected()
		}

		return
	}

	stopTimer(&m.backgroundTimer)

	if m.ts != nil {
		gen := m.generation
		m.setStateLocked(StateConnected)
		m.scheduleHeartbeatLocked(gen)
		m.mu.Unlock()

		return
	}

	// Transport dropped while backgrounded: reconnect with the
	// identity we still hold.
	identity := m.identity
	if identity == nil {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		return
	}

	m.generation++
	gen := m.generation
	m.retryCount = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.connect(gen, *identity)
}

// isActiveLocked reports whether a session is live or in the middle of
// (re)connecting. Recovery polling counts as active: it will connect
// on its own.
func (m *Manager) isActiveLocked() bool {
	switch m.state {
	case StateConnecting, StateConnected, StateBackgrounded, StateReconnecting:
		return true
	default:
		return false
	}
}

// connect performs one connection attempt for the given generation.
func (m *Manager) connect(gen uint64, identity models.Identity) {
	conn, err := m.dial(context.Background(), m.opts.URL)

	m.mu.Lock()

	if gen != m.generation {
		m.mu.Unlock()

		// This attempt was superseded while dialing; don't leak the
		// connection it may have opened.
		if err == nil {
			_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		}

		return
	}

	if err != nil {
		m.logger.Warn("connection attempt failed",
			slog.Int("attempt", m.retryCount+1),
			slog.String("error", err.Error()),
		)
		m.setStateLocked(StateReconnecting)
		m.scheduleRetryLocked(gen)
		m.mu.Unlock()

		return
	}

	ts := transport.NewSession(conn, m.logger)
	connCtx, cancel := context.WithCancel(context.Background())
	m.ts = ts
	m.connCancel = cancel
	m.retryCount = 0
	m.tracker.Advance(gen)
	m.setStateLocked(StateConnected)
	m.scheduleHeartbeatLocked(gen)
	m.mu.Unlock()

	ts.Start(connCtx)

	// The transport is open: identify ourselves, then ask for the
	// presence snapshot so the tracker rebuilds after every connect.
	if err := ts.Emit(connCtx, transport.EventSetup, identity); err != nil {
		m.connectionLost(gen, fmt.Errorf("sending setup: %w", err))
		return
	}

	if err := ts.Emit(connCtx, transport.EventGetOnlineUsers, nil); err != nil {
		m.connectionLost(gen, fmt.Errorf("requesting presence snapshot: %w", err))
		return
	}

	m.logger.Info("session connected",
		slog.String("user_id", identity.ID),
		slog.Uint64("generation", gen),
	)

	go m.readLoop(gen, connCtx, ts)
}

// readLoop consumes inbound events for one connection until it drops
// or is superseded.
func (m *Manager) readLoop(gen uint64, connCtx context.Context, ts *transport.Session) {
	for {
		select {
		case in := <-ts.Inbound():
			if in.Err != nil {
				m.connectionLost(gen, in.Err)
				return
			}

			m.handleEvent(gen, in)

		case <-connCtx.Done():
			return
		}
	}
}

// connectionLost reacts to a dropped transport. Fenced by generation:
// a stale connection's death is ignored.
func (m *Manager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return
	}

	m.logger.Warn("connection lost", slog.String("error", err.Error()))

	stopTimer(&m.heartbeatTimer)
	m.closeTransportLocked(false)

	if m.state == StateBackgrounded {
		// The background timer is still running; Foreground or its
		// expiry decides what happens next.
		return
	}

	m.setStateLocked(StateReconnecting)
	m.scheduleRetryLocked(gen)
}

// scheduleRetryLocked arms the next bounded retry, or hands over to
// the recovery poll once attempts are exhausted.
func (m *Manager) scheduleRetryLocked(gen uint64) {
	m.retryCount++

	if m.retryCount > m.opts.MaxRetries {
		m.logger.Warn("retries exhausted, falling back to recovery polling",
			slog.Int("attempts", m.opts.MaxRetries),
		)
		m.scheduleRecoveryLocked()

		return
	}

	delay := m.opts.RetryBaseDelay + time.Duration(m.retryCount-1)*m.opts.RetryStep

	m.retryTimer = time.AfterFunc(delay, func() {
		m.retryTick(gen)
	})
}

func (m *Manager) retryTick(gen uint64) {
	m.mu.Lock()

	if gen != m.generation || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}

	identity := m.identity
	if identity == nil {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		return
	}

	// Each fresh attempt advances the generation so callbacks from the
	// previous attempt cannot interleave with this one.
	m.generation++
	newGen := m.generation
	m.mu.Unlock()

	m.connect(newGen, *identity)
}

// scheduleRecoveryLocked arms the periodic recovery check that
// survives outages longer than the bounded retry window.
func (m *Manager) scheduleRecoveryLocked() {
	m.recoveryTimer = time.AfterFunc(m.opts.RecoveryInterval, m.recoveryTick)
}

// recoveryTick re-reads the persisted identity and tries once more.
// Without a persisted identity the session goes quiet until the next
// explicit StartSession.
func (m *Manager) recoveryTick() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	id, err := m.store.Identity()

	m.mu.Lock()

	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}

	if err != nil || id == nil {
		if err != nil {
			m.logger.Warn("recovery identity read failed", slog.String("error", err.Error()))
		}

		m.identity = nil
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		return
	}

	m.identity = id
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.logger.Info("recovery attempt", slog.String("user_id", id.ID))
	m.connect(gen, *id)
}

// handleEvent routes one inbound event. Fenced by generation before
// any state is touched.
func (m *Manager) handleEvent(gen uint64, in transport.Inbound) {
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()

	if stale {
		return
	}

	switch in.Name {
	case transport.EventUserOnline:
		if id, ok := decodeString(in.Data); ok {
			m.tracker.ApplyJoin(gen, id)
		}

	case transport.EventUserOffline:
		if id, ok := decodeString(in.Data); ok {
			m.tracker.ApplyLeave(gen, id)
		}

	case transport.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(in.Data, &ids); err != nil {
			m.logger.Warn("bad presence snapshot", slog.String("error", err.Error()))
			return
		}

		m.tracker.ApplySnapshot(gen, ids)

	case transport.EventMessageIn:
		var msg models.Message
		if err := json.Unmarshal(in.Data, &msg); err != nil {
			m.logger.Warn("bad inbound message", slog.String("error", err.Error()))
			return
		}

		for _, fn := range m.messageHandlers() {
			fn(msg)
		}

	case transport.EventTyping, transport.EventStopTyping:
		chatID, ok := decodeString(in.Data)
		if !ok {
			return
		}

		typing := in.Name == transport.EventTyping
		for _, fn := range m.typingHandlers() {
			fn(chatID, typing)
		}

	case transport.EventChatListUpdate:
		var upd models.ChatListUpdate
		if err := json.Unmarshal(in.Data, &upd); err != nil {
			m.logger.Warn("bad chat list update", slog.String("error", err.Error()))
			return
		}

		for _, fn := range m.chatListHandlers() {
			fn(upd)
		}

	case transport.EventMessagesRead:
		var rr models.ReadReceipt
		if err := json.Unmarshal(in.Data, &rr); err != nil {
			m.logger.Warn("bad read receipt", slog.String("error", err.Error()))
			return
		}

		for _, fn := range m.readHandlers() {
			fn(rr)
		}

	default:
		m.logger.Debug("unhandled event", slog.String("event", in.Name))
	}
}

func decodeString(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}

	return s, true
}

// --- outbound operations ---

// SendMessage emits a chat message to the server.
func (m *Manager) SendMessage(msg models.Message) error {
	return m.emitConnected(transport.EventNewMessage, msg)
}

// JoinChat subscribes to a conversation's message routing.
func (m *Manager) JoinChat(chatID string) error {
	return m.emitConnected(transport.EventJoinChat, chatID)
}

// LeaveChat unsubscribes from a conversation's message routing.
func (m *Manager) LeaveChat(chatID string) error {
	return m.emitConnected(transport.EventLeaveChat, chatID)
}

// Typing signals that the user is typing in a conversation and arms
// an auto-stop timer, refreshed by every subsequent call. The timer
// emits the stop event if the user goes quiet.
func (m *Manager) Typing(chatID string) error {
	m.mu.Lock()

	if m.state != StateConnected {
		m.mu.Unlock()
		return chaterrors.ErrNotConnected
	}

	ts := m.ts
	gen := m.generation

	if t, ok := m.typingTimers[chatID]; ok {
		t.Stop()
	}

	m.typingTimers[chatID] = time.AfterFunc(m.opts.TypingTimeout, func() {
		m.typingExpired(gen, chatID)
	})
	m.mu.Unlock()

	return ts.Emit(context.Background(), transport.EventTyping, chatID)
}

// StopTyping cancels the auto-stop timer and signals the stop.
func (m *Manager) StopTyping(chatID string) error {
	m.mu.Lock()

	if t, ok := m.typingTimers[chatID]; ok {
		t.Stop()
		delete(m.typingTimers, chatID)
	}

	if m.state != StateConnected {
		m.mu.Unlock()
		return chaterrors.ErrNotConnected
	}

	ts := m.ts
	m.mu.Unlock()

	return ts.Emit(context.Background(), transport.EventStopTyping, chatID)
}

func (m *Manager) typingExpired(gen uint64, chatID string) {
	m.mu.Lock()

	delete(m.typingTimers, chatID)

	if gen != m.generation || m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	ts := m.ts
	m.mu.Unlock()

	if err := ts.Emit(context.Background(), transport.EventStopTyping, chatID); err != nil {
		m.logger.Debug("auto stop-typing failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) emitConnected(event string, payload any) error {
	m.mu.Lock()

	if m.state != StateConnected || m.ts == nil {
		m.mu.Unlock()
		return chaterrors.ErrNotConnected
	}

	ts := m.ts
	m.mu.Unlock()

	return ts.Emit(context.Background(), event, payload)
}

// --- heartbeat ---

func (m *Manager) scheduleHeartbeatLocked(gen uint64) {
	stopTimer(&m.heartbeatTimer)

	m.heartbeatTimer = time.AfterFunc(m.opts.HeartbeatInterval, func() {
		m.heartbeatTick(gen)
	})
}

func (m *Manager) heartbeatTick(gen uint64) {
	m.mu.Lock()

	if gen != m.generation || m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	ts := m.ts
	m.scheduleHeartbeatLocked(gen)
	m.mu.Unlock()

	if err := ts.Emit(context.Background(), transport.EventHeartbeat, nil); err != nil {
		// The read loop surfaces the dead connection; nothing to do here.
		m.logger.Debug("heartbeat send failed", slog.String("error", err.Error()))
	}
}

// --- lifecycle timers ---

func (m *Manager) backgroundExpired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.state != StateBackgrounded {
		return
	}

	m.logger.Info("background timeout expired, closing transport")
	m.closeTransportLocked(false)
	m.setStateLocked(StateDisconnected)
}

// --- teardown ---

// teardownLocked closes everything belonging to the current session
// attempt and advances the generation so every in-flight callback is
// fenced out.
func (m *Manager) teardownLocked(notifyPeer bool) {
	m.generation++
	m.retryCount = 0

	stopTimer(&m.heartbeatTimer)
	stopTimer(&m.backgroundTimer)
	stopTimer(&m.retryTimer)
	stopTimer(&m.recoveryTimer)

	for chatID, t := range m.typingTimers {
		t.Stop()
		delete(m.typingTimers, chatID)
	}

	m.closeTransportLocked(notifyPeer)
}

func (m *Manager) closeTransportLocked(notifyPeer bool) {
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}

	if m.ts == nil {
		return
	}

	if notifyPeer {
		ctx, cancel := context.WithTimeout(context.Background(), teardownEmitTimeout)
		if err := m.ts.Emit(ctx, transport.EventAppBackground, nil); err != nil {
			m.logger.Debug("offline signal failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	_ = m.ts.Close()
	m.ts = nil
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// --- subscriptions ---

// OnMessage registers a handler for inbound chat messages. Handlers
// run on the read loop goroutine; keep them short.
func (m *Manager) OnMessage(fn func(models.Message)) {
	m.mu.Lock()
	m.onMessage = append(m.onMessage, fn)
	m.mu.Unlock()
}

// OnTyping registers a handler for typing start/stop events.
func (m *Manager) OnTyping(fn func(chatID string, typing bool)) {
	m.mu.Lock()
	m.onTyping = append(m.onTyping, fn)
	m.mu.Unlock()
}

// OnStateChange registers a handler invoked after every state
// transition. Handlers run on their own goroutine so they may call
// back into the manager.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.onState = append(m.onState, fn)
	m.mu.Unlock()
}

// OnChatListUpdate registers a handler for conversation summary updates.
func (m *Manager) OnChatListUpdate(fn func(models.ChatListUpdate)) {
	m.mu.Lock()
	m.onChatList = append(m.onChatList, fn)
	m.mu.Unlock()
}

// OnMessagesRead registers a handler for read receipts.
func (m *Manager) OnMessagesRead(fn func(models.ReadReceipt)) {
	m.mu.Lock()
	m.onRead = append(m.onRead, fn)
	m.mu.Unlock()
}

func (m *Manager) messageHandlers() []func(models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]func(models.Message){}, m.onMessage...)
}

func (m *Manager) typingHandlers() []func(string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]func(string, bool){}, m.onTyping...)
}

func (m *Manager) chatListHandlers() []func(models.ChatListUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]func(models.ChatListUpdate){}, m.onChatList...)
}

func (m *Manager) readHandlers() []func(models.ReadReceipt) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]func(models.ReadReceipt){}, m.onRead...)
}

// setStateLocked records a transition and notifies subscribers.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}

	m.logger.Debug("session state",
		slog.String("from", m.state.String()),
		slog.String("to", s.String()),
	)
	m.state = s

	if len(m.onState) == 0 {
		return
	}

	fns := append([]func(State){}, m.onState...)

	go func() {
		for _, fn := range fns {
			fn(s)
		}
	}()
}
