package models

import (
	"fmt"
	"time"
)

// Message represents a persisted chat message, direct or group.
type Message struct {
	ID        int       `db:"id" json:"id"`
	FromUser  int       `db:"from_user" json:"from_user"`
	ToUser    *int      `db:"to_user" json:"to_user,omitempty"`
	GroupID   *int      `db:"group_id" json:"group_id,omitempty"`
	Text      string    `db:"text" json:"text"`
	FileURL   *string   `db:"file_url" json:"file_url,omitempty"`
	FileName  *string   `db:"file_name" json:"file_name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsGroup reports whether the message targets a group.
func (m Message) IsGroup() bool {
	return m.GroupID != nil
}

// ConversationKey returns the storage key of the conversation the message belongs to.
func (m Message) ConversationKey() string {
	if m.GroupID != nil {
		return GroupKey(*m.GroupID)
	}
	if m.ToUser != nil {
		return DirectKey(m.FromUser, *m.ToUser)
	}
	return ""
}

// DirectKey is the sorted-pair key shared by both sides of a direct conversation.
func DirectKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("direct:%d-%d", a, b)
}

// GroupKey is the conversation key of a group.
func GroupKey(groupID int) string {
	return fmt.Sprintf("group:%d", groupID)
}

// ReadCursor records the newest message a user has seen in a conversation.
type ReadCursor struct {
	UserID          int    `db:"user_id" json:"user_id"`
	ConversationKey string `db:"conversation_key" json:"conversation_key"`
	LastReadID      int    `db:"last_read_id" json:"last_read_id"`
}
