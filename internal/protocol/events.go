// Package protocol defines the named-event frames exchanged over the realtime socket.
//
// Every frame is a JSON object {"event": "<name>", "data": <payload>}. Inbound frames are
// decoded into one concrete type per event name and validated before any handler acts on
// them; unknown names and malformed payloads never reach the core.
package protocol

import "chat-core/internal/models"

// Client -> server event names.
const (
	EventRegister          = "register"
	EventMessage           = "message"
	EventCreateGroup       = "createGroup"
	EventConnectionsUpdate = "users_connections:update"
	EventPresenceUpdate    = "presence:update"
	EventMessagesRead      = "messages:read"
)

// Server -> client event names. message, users_connections:update and messages:read are
// shared with the inbound vocabulary.
const (
	EventGroupCreated    = "groupCreated"
	EventRequestReceived = "connection_request_received"
	EventUserUpdated     = "user:updated"
	EventUserCreated     = "user:created"
	EventRegistered      = "registered"
	EventError           = "error"
)

// Inbound is a decoded client frame.
type Inbound interface {
	EventName() string
}

// Register binds the connection to a user.
type Register struct {
	UserID int
}

// Envelope is an outgoing chat message as submitted by a client.
type Envelope struct {
	FromUser int    `json:"from_user"`
	Text     string `json:"text,omitempty"`
	ToUser   *int   `json:"to_user,omitempty"`
	GroupID  *int   `json:"group_id,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// SendMessage carries an Envelope.
type SendMessage struct {
	Envelope
}

// CreateGroup asks for a new group with the given members.
type CreateGroup struct {
	Name    string `json:"name"`
	Members []int  `json:"members"`
}

// ConnectionUpdate drives the connection request state machine. The same shape is relayed
// back to both parties once a transition commits.
type ConnectionUpdate struct {
	Action     models.RequestAction `json:"action"`
	FromUserID int                  `json:"from_user_id"`
	ToUserID   int                  `json:"to_user_id"`
}

// PresenceUpdate is a client-asserted presence value such as away or busy.
type PresenceUpdate struct {
	Presence models.Presence `json:"presence"`
}

// MarkRead moves the caller's read cursor in one conversation.
type MarkRead struct {
	ToUser    *int `json:"to_user,omitempty"`
	GroupID   *int `json:"group_id,omitempty"`
	MessageID int  `json:"message_id"`
}

func (Register) EventName() string         { return EventRegister }
func (SendMessage) EventName() string      { return EventMessage }
func (CreateGroup) EventName() string      { return EventCreateGroup }
func (ConnectionUpdate) EventName() string { return EventConnectionsUpdate }
func (PresenceUpdate) EventName() string   { return EventPresenceUpdate }
func (MarkRead) EventName() string         { return EventMessagesRead }

// GroupCreated announces a group to its members.
type GroupCreated struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Members []int  `json:"members"`
}

// RequestReceived injects a request into the recipient's received view.
type RequestReceived struct {
	FromUser models.User `json:"from_user"`
}

// Registered acknowledges a successful register.
type Registered struct {
	UserID int `json:"user_id"`
}

// ErrorPayload reports a rejected inbound event to the actor only.
type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
