package repository

import (
	"time"

	"github.com/edusphere/courseline/internal/domain"
)

type LocalMessageRepository struct {
	db *DB
}

func newLocalMessageRepository(db *DB) LocalMessageRepository {
	return LocalMessageRepository{db}
}

// SaveMsg is idempotent on the message id, re-receiving a message the
// ack already cached is a no-op.
func (r LocalMessageRepository) SaveMsg(msg *domain.Message) error {
	query := `
		INSERT INTO message (id, conversation_id, sender_id, content, attachments, created_at,
		                     is_read, read_at, is_deleted_for_everyone)
		VALUES (:id, :conversation_id, :sender_id, :content, :attachments, :created_at,
		        :is_read, :read_at, :is_deleted_for_everyone)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.NamedExec(query, msg)
	return err
}

// TombstoneMsgs mirrors a delete-for-everyone, the rows stay so the
// thread keeps its shape.
func (r LocalMessageRepository) TombstoneMsgs(ids ...string) error {
	query := `
		UPDATE message
		SET content = '', attachments = '[]', is_deleted_for_everyone = 1, version = version + 1
		WHERE id = $1
	`
	for _, id := range ids {
		if _, err := r.db.Exec(query, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMsgs mirrors a delete-for-me, the rows disappear from this
// viewer's cache only.
func (r LocalMessageRepository) DeleteMsgs(ids ...string) error {
	query := `
		DELETE FROM message WHERE id = $1
	`
	for _, id := range ids {
		if _, err := r.db.Exec(query, id); err != nil {
			return err
		}
	}
	return nil
}

// MarkConversationRead flips every unread message in the conversation
// not sent by readerID, matching what the store does on a read receipt.
func (r LocalMessageRepository) MarkConversationRead(conversationID, readerID string, readAt time.Time) error {
	query := `
		UPDATE message
		SET is_read = 1, read_at = $1, version = version + 1
		WHERE conversation_id = $2 AND sender_id <> $3 AND is_read = 0
	`
	_, err := r.db.Exec(query, readAt, conversationID, readerID)
	return err
}

// GetMsgsPage returns one page newest-first plus the total count for
// the conversation.
func (r LocalMessageRepository) GetMsgsPage(conversationID string, offset, limit int) ([]*domain.Message, int, error) {
	query := `
		SELECT COUNT(*) OVER(), id, conversation_id, sender_id, content, attachments, created_at,
		       is_read, read_at, is_deleted_for_everyone, version
		FROM message
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	    OFFSET $3
	`
	rows, err := r.db.Query(query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var total int
	msgs := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var createdAt string
		var readAt *string
		args := []any{
			&total, &m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Attachments, &createdAt,
			&m.IsRead, &readAt, &m.IsDeletedForEveryone, &m.Version,
		}
		if err = rows.Scan(args...); err != nil {
			return nil, 0, err
		}
		if t, _ := parseTime(&createdAt); t != nil {
			m.CreatedAt = *t
		}
		m.ReadAt, _ = parseTime(readAt)
		msgs = append(msgs, &m)
	}
	return msgs, total, rows.Err()
}
