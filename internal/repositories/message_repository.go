package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

const messageColumns = `id, from_user, to_user, group_id, text, file_url, file_name, created_at`

// ConversationHead is the newest message a user did not author in one conversation.
type ConversationHead struct {
	PeerID        int `db:"peer_id"`
	GroupID       int `db:"group_id"`
	LastMessageID int `db:"last_id"`
}

// Key returns the conversation key of the head.
func (h ConversationHead) Key(userID int) string {
	if h.GroupID > 0 {
		return models.GroupKey(h.GroupID)
	}
	return models.DirectKey(userID, h.PeerID)
}

// MessageRepository persists messages and read cursors.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	DirectHistory(ctx context.Context, userA, userB, beforeID, limit int) ([]models.Message, error)
	GroupHistory(ctx context.Context, groupID, beforeID, limit int) ([]models.Message, error)
	LatestForeign(ctx context.Context, userID int) ([]ConversationHead, error)
	ReadCursors(ctx context.Context, userID int) (map[string]int, error)
	AdvanceCursor(ctx context.Context, userID int, conversationKey string, messageID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores msg and returns it with id and created_at assigned.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.CreatedAt = now()
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO messages (from_user, to_user, group_id, text, file_url, file_name, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		msg.FromUser, msg.ToUser, msg.GroupID, msg.Text, msg.FileURL, msg.FileName, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	return msg, err
}

// DirectHistory returns up to limit messages between two users older than beforeID
// (0 means newest), oldest first.
func (r *MessageRepo) DirectHistory(ctx context.Context, userA, userB, beforeID, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE group_id IS NULL
        AND ((from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?))
        AND (? = 0 OR id < ?)
        ORDER BY id DESC LIMIT ?`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), userA, userB, userB, userA, beforeID, beforeID, limit); err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// GroupHistory is DirectHistory for a group conversation.
func (r *MessageRepo) GroupHistory(ctx context.Context, groupID, beforeID, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE group_id = ? AND (? = 0 OR id < ?)
        ORDER BY id DESC LIMIT ?`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), groupID, beforeID, beforeID, limit); err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// LatestForeign returns, per conversation of userID, the newest message authored by
// someone else.
func (r *MessageRepo) LatestForeign(ctx context.Context, userID int) ([]ConversationHead, error) {
	heads := []ConversationHead{}
	direct := `SELECT from_user AS peer_id, 0 AS group_id, MAX(id) AS last_id FROM messages
        WHERE to_user = ? AND group_id IS NULL
        GROUP BY from_user`
	if err := r.db.SelectContext(ctx, &heads, r.db.Rebind(direct), userID); err != nil {
		return nil, err
	}

	groups := []ConversationHead{}
	group := `SELECT 0 AS peer_id, m.group_id AS group_id, MAX(m.id) AS last_id FROM messages m
        INNER JOIN group_members gm ON gm.group_id = m.group_id AND gm.user_id = ?
        WHERE m.from_user <> ?
        GROUP BY m.group_id`
	if err := r.db.SelectContext(ctx, &groups, r.db.Rebind(group), userID, userID); err != nil {
		return nil, err
	}
	return append(heads, groups...), nil
}

// ReadCursors maps conversation key to the last message id userID has read.
func (r *MessageRepo) ReadCursors(ctx context.Context, userID int) (map[string]int, error) {
	var rows []models.ReadCursor
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT user_id, conversation_key, last_read_id FROM read_cursors WHERE user_id = ?`), userID); err != nil {
		return nil, err
	}
	cursors := make(map[string]int, len(rows))
	for _, c := range rows {
		cursors[c.ConversationKey] = c.LastReadID
	}
	return cursors, nil
}

// AdvanceCursor moves the cursor forward only and returns the stored value.
func (r *MessageRepo) AdvanceCursor(ctx context.Context, userID int, conversationKey string, messageID int) (int, error) {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO read_cursors (user_id, conversation_key, last_read_id) VALUES (?, ?, ?)
        ON CONFLICT (user_id, conversation_key) DO UPDATE SET last_read_id =
            CASE WHEN excluded.last_read_id > read_cursors.last_read_id THEN excluded.last_read_id ELSE read_cursors.last_read_id END`),
		userID, conversationKey, messageID)
	if err != nil {
		return 0, err
	}
	var stored int
	err = r.db.GetContext(ctx, &stored, r.db.Rebind(`SELECT last_read_id FROM read_cursors WHERE user_id = ? AND conversation_key = ?`), userID, conversationKey)
	return stored, err
}
