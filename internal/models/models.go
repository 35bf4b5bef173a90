// Package models holds the shared data types exchanged between the
// session layer, the presence tracker, and the notification engine.
package models

// Identity is the authenticated user the session is bound to. It is
// produced by the external auth module and treated as opaque input:
// the token is replayed verbatim in the setup event on every connect.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

// Message is a chat message as carried on the wire, in both directions
// (new message out, message received in).
type Message struct {
	ID        string `json:"id,omitempty"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ChatListUpdate is the inbound summary event the server sends when a
// conversation's last message or unread count changes.
type ChatListUpdate struct {
	ChatID      string `json:"chatId"`
	LastMessage string `json:"lastMessage"`
	UnreadCount int    `json:"unreadCount"`
}

// ReadReceipt is the inbound event sent when a peer reads a conversation.
type ReadReceipt struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// NavTarget is a pending deep-link destination awaiting authentication
// and UI readiness. The zero value means "no target".
type NavTarget struct {
	ChatID      string `json:"chatId"`
	PeerID      string `json:"peerId,omitempty"`
	IsGroup     bool   `json:"isGroupChat"`
	DisplayName string `json:"chatName,omitempty"`
}

// IsZero reports whether the target is empty.
func (t NavTarget) IsZero() bool {
	return t == NavTarget{}
}

// NotificationMessage is one entry in a grouped notification's ordered
// message list.
type NotificationMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
