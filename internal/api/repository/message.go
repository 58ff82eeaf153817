package repository

import (
	"context"
	"time"

	"github.com/edusphere/courseline/internal/domain"
	"github.com/jmoiron/sqlx"
)

var _ domain.MessageRepository = (*MessageRepository)(nil)

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, attachments, created_at)
		VALUES (:id, :conversation_id, :sender_id, :content, :attachments, :created_at)
		ON CONFLICT (id) DO NOTHING
		`
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.NamedExecContext(ctx, query, m)
	} else {
		_, err = r.db.NamedExecContext(ctx, query, m)
	}
	return err
}

// GetPage walks backward in time: offset counts already loaded messages,
// the page itself comes back newest-first and the caller reverses it.
// Rows the viewer deleted for themselves are filtered out here, the
// counterpart's fetches still see them.
func (r *MessageRepository) GetPage(
	ctx context.Context,
	conversationID, viewerID string,
	offset, limit int,
) ([]*domain.Message, int, error) {
	query := `
		SELECT COUNT(*) OVER() total_rows, m.id, m.conversation_id, m.sender_id, m.content,
		       m.attachments, m.created_at, m.is_read, m.read_at, m.is_deleted_for_everyone, m.version
		FROM messages m
		WHERE m.conversation_id = $1
		AND NOT EXISTS (
		    SELECT 1 FROM message_hidden h
		    WHERE h.message_id = m.id AND h.user_id = $2
		)
		ORDER BY m.created_at DESC, m.id
		LIMIT $3 OFFSET $4
		`
	var rows *sqlx.Rows
	var err error
	args := []any{conversationID, viewerID, limit, offset}
	if tx := contextGetTX(ctx); tx != nil {
		rows, err = tx.QueryxContext(ctx, query, args...)
	} else {
		rows, err = r.db.QueryxContext(ctx, query, args...)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var totalRows int
	msgs := make([]*domain.Message, 0)
	for rows.Next() {
		var row struct {
			domain.Message
			TotalRows int `db:"total_rows"`
		}
		if err = rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		totalRows = row.TotalRows
		msgs = append(msgs, &row.Message)
	}
	return msgs, totalRows, rows.Err()
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID, readerID string,
	readAt time.Time,
) error {
	query := `
		UPDATE messages
		SET is_read = TRUE, read_at = $3, version = version + 1
		WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
		`
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, query, conversationID, readerID, readAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, conversationID, readerID, readAt)
	}
	return err
}

// LockForDelete loads the targeted rows under FOR UPDATE so the window
// check and the batch mutation happen against a stable snapshot.
func (r *MessageRepository) LockForDelete(ctx context.Context, messageIDs []string) ([]*domain.Message, error) {
	query, args, err := sqlx.In(`
		SELECT id, conversation_id, sender_id, content, attachments, created_at,
		       is_read, read_at, is_deleted_for_everyone, version
		FROM messages
		WHERE id IN (?)
		FOR UPDATE
		`, messageIDs)
	if err != nil {
		return nil, err
	}
	tx := contextGetTX(ctx)
	if tx == nil {
		return nil, errAcquireLockOutsideTX
	}
	query = tx.Rebind(query)
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs := make([]*domain.Message, 0, len(messageIDs))
	for rows.Next() {
		var m domain.Message
		if err = rows.StructScan(&m); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepository) TombstoneAll(ctx context.Context, messageIDs []string) error {
	query, args, err := sqlx.In(`
		UPDATE messages
		SET content = '', attachments = '[]', is_deleted_for_everyone = TRUE, version = version + 1
		WHERE id IN (?)
		`, messageIDs)
	if err != nil {
		return err
	}
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	} else {
		_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	}
	return err
}

func (r *MessageRepository) HideAll(ctx context.Context, messageIDs []string, userID string) error {
	query, args, err := sqlx.In(`
		INSERT INTO message_hidden (message_id, user_id)
		SELECT id, ? FROM messages WHERE id IN (?)
		ON CONFLICT DO NOTHING
		`, userID, messageIDs)
	if err != nil {
		return err
	}
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	} else {
		_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	}
	return err
}
