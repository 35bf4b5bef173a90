// Package notify merges inbound push payloads into per-conversation
// grouped notifications. Payloads arrive over the OS push channel, not
// the live transport, so the engine also nudges the session manager to
// reconnect when a payload lands while the transport is cold.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/chatlink/internal/models"
	"github.com/alexjbarnes/chatlink/internal/navigation"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

const (
	// fallbackTitle is shown when neither the structured chat data nor
	// the plain notification fields carry a usable title.
	fallbackTitle = "Unknown Sender"

	// fallbackBody is shown when a payload carries no message text.
	fallbackBody = "New message"

	// loginAlertHandle is the fixed display handle for the one-shot
	// login notification, so repeated logins replace it in place.
	loginAlertHandle = "login_alert"
)

// Notification is what the engine hands to the OS display surface.
// Messages holds the full merged thread for the conversation; Body is
// the most recent text for surfaces that only show one line.
type Notification struct {
	Handle   string
	Title    string
	Body     string
	Icon     []byte
	Messages []models.NotificationMessage
	Target   models.NavTarget
}

// Displayer is the OS local-notification surface. Re-displaying with
// an existing handle replaces the banner in place instead of stacking.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
}

// SessionControl is the slice of the session manager the engine needs:
// whether the transport is live, whether an identity is authenticated,
// and a way to trigger a reconnect from the persisted identity.
type SessionControl interface {
	Connected() bool
	Authenticated() bool
	EnsureConnected()
}

// group tracks one undismissed grouped notification.
type group struct {
	handle   string
	title    string
	messages []models.NotificationMessage
}

// Engine merges push payloads into grouped notifications.
type Engine struct {
	logger  *slog.Logger
	avatars *AvatarResolver
	display Displayer
	session SessionControl
	nav     *navigation.Register

	now func() time.Time

	mu     sync.Mutex
	groups map[string]*group
}

// NewEngine creates a merge engine. session may be nil when the engine
// runs before any session manager exists (headless push handling).
func NewEngine(display Displayer, avatars *AvatarResolver, session SessionControl, nav *navigation.Register, logger *slog.Logger) *Engine {
	return &Engine{
		logger:  logger,
		avatars: avatars,
		display: display,
		session: session,
		nav:     nav,
		now:     time.Now,
		groups:  make(map[string]*group),
	}
}

// payload is the tolerant decoding of one push payload. Missing or
// unparseable structured fields fall back to the plain notification
// fields; nothing in here is trusted to be present.
type payload struct {
	conversationID string
	peerID         string
	isGroup        bool
	title          string
	body           string
	avatarURL      string
}

// parsePayload probes the push payload. data.chatData is a JSON string
// embedded in JSON; when it fails to parse it is treated as absent.
func parsePayload(raw []byte) payload {
	var p payload

	chatData := gjson.GetBytes(raw, "data.chatData").String()
	if chatData != "" && gjson.Valid(chatData) {
		cd := gjson.Parse(chatData)
		p.isGroup = cd.Get("isGroupChat").Bool()
		p.peerID = cd.Get("userId").String()
		p.title = cd.Get("chatName").String()

		p.conversationID = cd.Get("chatId").String()
		if !p.isGroup && p.peerID != "" {
			// 1:1 threads group by peer, so messages from the same
			// person merge even across chat ids.
			p.conversationID = p.peerID
		}
	}

	if p.title == "" {
		p.title = gjson.GetBytes(raw, "notification.title").String()
	}

	if p.title == "" {
		p.title = fallbackTitle
	}

	p.title = norm.NFC.String(p.title)

	p.body = gjson.GetBytes(raw, "data.body").String()
	if p.body == "" {
		p.body = gjson.GetBytes(raw, "notification.body").String()
	}

	if p.body == "" {
		p.body = fallbackBody
	}

	if !p.isGroup {
		p.avatarURL = gjson.GetBytes(raw, "data.senderAvatar").String()
	}

	return p
}

func (p payload) target() models.NavTarget {
	if p.conversationID == "" {
		return models.NavTarget{}
	}

	t := models.NavTarget{
		ChatID:      p.conversationID,
		IsGroup:     p.isGroup,
		DisplayName: p.title,
	}
	if !p.isGroup {
		t.PeerID = p.peerID
	}

	return t
}

// HandlePush processes one inbound push payload: reconnects a cold
// session, defers navigation when unauthenticated, and merges the
// message into its conversation's grouped notification. Errors never
// propagate past this boundary.
func (e *Engine) HandlePush(ctx context.Context, raw []byte) {
	p := parsePayload(raw)

	if e.session != nil && !e.session.Connected() {
		// A payload while the transport is cold means the app was
		// killed or backgrounded past timeout; reconnect now so a tap
		// on the notification lands in a live session.
		e.session.EnsureConnected()
	}

	if target := p.target(); !target.IsZero() {
		if e.session == nil || !e.session.Authenticated() {
			e.nav.Set(target)
		}
	}

	msg := models.NotificationMessage{
		Text:      p.body,
		Timestamp: e.now().UnixMilli(),
	}

	n := e.merge(p, msg)

	avatarURL := p.avatarURL
	if p.isGroup {
		avatarURL = initialAvatarURL(p.title)
	}

	n.Icon = e.avatars.Resolve(ctx, avatarURL)

	if err := e.display.Display(ctx, n); err != nil {
		e.logger.Warn("failed to display notification",
			slog.String("conversation_id", p.conversationID),
			slog.String("error", err.Error()),
		)

		return
	}

	e.logger.Debug("notification displayed",
		slog.String("conversation_id", p.conversationID),
		slog.String("handle", n.Handle),
		slog.Int("messages", len(n.Messages)),
	)
}

// merge appends the message to the conversation's group, creating the
// group (and its display handle) on first message. Payloads without a
// conversation id get a one-off untracked notification.
func (e *Engine) merge(p payload, msg models.NotificationMessage) Notification {
	if p.conversationID == "" {
		return Notification{
			Handle:   uuid.NewString(),
			Title:    p.title,
			Body:     msg.Text,
			Messages: []models.NotificationMessage{msg},
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[p.conversationID]
	if !ok {
		g = &group{
			handle: uuid.NewString(),
			title:  p.title,
		}
		e.groups[p.conversationID] = g
	}

	g.messages = append(g.messages, msg)
	if p.title != fallbackTitle {
		g.title = p.title
	}

	messages := make([]models.NotificationMessage, len(g.messages))
	copy(messages, g.messages)

	return Notification{
		Handle:   g.handle,
		Title:    g.title,
		Body:     msg.Text,
		Messages: messages,
		Target:   p.target(),
	}
}

// ClearConversation drops the grouped notification for a conversation.
// Called when the user opens that conversation, so a later message
// starts a fresh group instead of appending to a stale handle.
func (e *Engine) ClearConversation(conversationID string) {
	e.mu.Lock()
	_, ok := e.groups[conversationID]
	delete(e.groups, conversationID)
	e.mu.Unlock()

	if ok {
		e.logger.Debug("cleared grouped notification", slog.String("conversation_id", conversationID))
	}
}

// HandleTap records the navigation target of a notification the user
// tapped to launch the app cold. The target is persisted so it survives
// until authentication resolves and the shell consumes it.
func (e *Engine) HandleTap(raw []byte) {
	target := parsePayload(raw).target()
	if target.IsZero() {
		return
	}

	e.nav.Set(target)
}

// ShowLoginAlert displays the one-shot account security notification
// issued after a freshly started session first connects.
func (e *Engine) ShowLoginAlert(ctx context.Context) {
	n := Notification{
		Handle: loginAlertHandle,
		Title:  "chatlink - Login Alert",
		Body:   "You have successfully logged in. Your account security is our top priority.",
	}

	if err := e.display.Display(ctx, n); err != nil {
		e.logger.Warn("failed to display login alert", slog.String("error", err.Error()))
	}
}
