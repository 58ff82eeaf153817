package repository

import (
	"github.com/edusphere/courseline/internal/domain"
)

type LocalConversationRepository struct {
	db *DB
}

func newLocalConversationRepository(db *DB) LocalConversationRepository {
	return LocalConversationRepository{db}
}

func (r LocalConversationRepository) SaveConversations(convos ...*domain.Conversation) error {
	query := `
		INSERT INTO conversation (id, course_id, course_name, counterpart_id, counterpart_name, counterpart_picture,
		                          last_message_content, last_message_at, learner_unread_count, instructor_unread_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    last_message_content = excluded.last_message_content,
		    last_message_at = excluded.last_message_at,
		    learner_unread_count = excluded.learner_unread_count,
		    instructor_unread_count = excluded.instructor_unread_count,
		    counterpart_name = excluded.counterpart_name,
		    counterpart_picture = excluded.counterpart_picture
	`
	for _, convo := range convos {
		if convo.ID == nil { // virtual, nothing durable to cache yet
			continue
		}
		args := []any{
			*convo.ID, convo.Course.ID, convo.Course.Name,
			convo.Counterpart.ID, convo.Counterpart.Name, convo.Counterpart.ProfilePicture,
			convo.LastMessageContent, convo.LastMessageAt,
			convo.LearnerUnreadCount, convo.InstructorUnreadCount,
		}
		if _, err := r.db.Exec(query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r LocalConversationRepository) DeleteAllConversations() error {
	_, err := r.db.Exec(`DELETE FROM conversation`)
	return err
}

func (r LocalConversationRepository) GetConversations() ([]*domain.Conversation, error) {
	query := `
		SELECT id, course_id, course_name, counterpart_id, counterpart_name, counterpart_picture,
		       last_message_content, last_message_at, learner_unread_count, instructor_unread_count
		FROM conversation
		ORDER BY last_message_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	convos := make([]*domain.Conversation, 0)
	for rows.Next() {
		convo, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convos = append(convos, convo)
	}
	return convos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var id string
	var lastMsgAt *string
	args := []any{
		&id, &c.Course.ID, &c.Course.Name,
		&c.Counterpart.ID, &c.Counterpart.Name, &c.Counterpart.ProfilePicture,
		&c.LastMessageContent, &lastMsgAt,
		&c.LearnerUnreadCount, &c.InstructorUnreadCount,
	}
	if err := row.Scan(args...); err != nil {
		return nil, err
	}
	c.ID = &id
	c.LastMessageAt, _ = parseTime(lastMsgAt)
	return &c, nil
}
