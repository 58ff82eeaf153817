package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edusphere/courseline/internal/domain"
	"github.com/jmoiron/sqlx"
)

var _ domain.ConversationRepository = (*ConversationRepository)(nil)

type ConversationRepository struct {
	DB *DB
}

func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

// conversationRow is the flat scan target, assembled into the nested
// domain.Conversation afterward.
type conversationRow struct {
	ID                    string     `db:"id"`
	CourseID              string     `db:"course_id"`
	CourseName            string     `db:"course_name"`
	CounterpartID         string     `db:"counterpart_id"`
	CounterpartName       string     `db:"counterpart_name"`
	CounterpartPicture    string     `db:"counterpart_picture"`
	LastMessageContent    string     `db:"last_message_content"`
	LastMessageAt         *time.Time `db:"last_message_at"`
	LearnerUnreadCount    int        `db:"learner_unread_count"`
	InstructorUnreadCount int        `db:"instructor_unread_count"`
	LearnerID             string     `db:"learner_id"`
	InstructorID          string     `db:"instructor_id"`
	TotalRows             int        `db:"total_rows"`
}

func (r conversationRow) toDomain() *domain.Conversation {
	id := r.ID
	return &domain.Conversation{
		ID: &id,
		Course: domain.Course{
			ID:   r.CourseID,
			Name: r.CourseName,
		},
		Counterpart: domain.Counterpart{
			ID:             r.CounterpartID,
			Name:           r.CounterpartName,
			ProfilePicture: r.CounterpartPicture,
		},
		LastMessageContent:    r.LastMessageContent,
		LastMessageAt:         r.LastMessageAt,
		LearnerUnreadCount:    r.LearnerUnreadCount,
		InstructorUnreadCount: r.InstructorUnreadCount,
		LearnerID:             r.LearnerID,
		InstructorID:          r.InstructorID,
	}
}

func (r *ConversationRepository) Upsert(ctx context.Context, courseID, learnerID, instructorID string) (string, error) {
	// the no-op DO UPDATE makes RETURNING yield the existing id on
	// conflict, so a virtual conversation resolves to its canonical row
	// in a single statement
	query := `
		INSERT INTO conversations (course_id, learner_id, instructor_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id, instructor_id, course_id)
		DO UPDATE SET course_id = EXCLUDED.course_id
		RETURNING id
		`
	var id string
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		err = tx.QueryRowxContext(ctx, query, courseID, learnerID, instructorID).Scan(&id)
	} else {
		err = r.DB.QueryRowxContext(ctx, query, courseID, learnerID, instructorID).Scan(&id)
	}
	return id, err
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	query := `
		SELECT c.id, c.course_id, co.name course_name,
		       '' counterpart_id, '' counterpart_name, '' counterpart_picture,
		       c.last_message_content, c.last_message_at,
		       c.learner_unread_count, c.instructor_unread_count,
		       c.learner_id, c.instructor_id, 0 total_rows
		FROM conversations c
		    INNER JOIN courses co ON co.id = c.course_id
		WHERE c.id = $1
		`
	var row conversationRow
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		err = tx.QueryRowxContext(ctx, query, conversationID).StructScan(&row)
	} else {
		err = r.DB.QueryRowxContext(ctx, query, conversationID).StructScan(&row)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetForUser resolves the conversation as one participant sees it, the
// counterpart columns name the other participant.
func (r *ConversationRepository) GetForUser(ctx context.Context, conversationID, viewerID string) (*domain.Conversation, error) {
	query := `
		SELECT c.id, c.course_id, co.name course_name,
		       u.id counterpart_id, u.name counterpart_name, u.profile_picture counterpart_picture,
		       c.last_message_content, c.last_message_at,
		       c.learner_unread_count, c.instructor_unread_count,
		       c.learner_id, c.instructor_id, 0 total_rows
		FROM conversations c
		    INNER JOIN courses co ON co.id = c.course_id
		    INNER JOIN users u ON u.id = CASE WHEN c.learner_id = $2 THEN c.instructor_id ELSE c.learner_id END
		WHERE c.id = $1
		`
	var row conversationRow
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		err = tx.QueryRowxContext(ctx, query, conversationID, viewerID).StructScan(&row)
	} else {
		err = r.DB.QueryRowxContext(ctx, query, conversationID, viewerID).StructScan(&row)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ConversationRepository) List(
	ctx context.Context,
	viewerID string,
	f domain.ConversationFilter,
) ([]*domain.Conversation, int, error) {
	query := `
		SELECT COUNT(*) OVER() total_rows,
		       c.id, c.course_id, co.name course_name,
		       u.id counterpart_id, u.name counterpart_name, u.profile_picture counterpart_picture,
		       c.last_message_content, c.last_message_at,
		       c.learner_unread_count, c.instructor_unread_count,
		       c.learner_id, c.instructor_id
		FROM conversations c
		    INNER JOIN courses co ON co.id = c.course_id
		    INNER JOIN users u ON u.id = CASE WHEN c.learner_id = $1 THEN c.instructor_id ELSE c.learner_id END
		WHERE (c.learner_id = $1 OR c.instructor_id = $1)
		AND ($2 = '' OR c.course_id::text = $2)
		AND ($3 = '' OR u.id::text = $3)
		AND ($4 = '' OR u.name ILIKE '%' || $4 || '%' OR co.name ILIKE '%' || $4 || '%')
		ORDER BY c.last_message_at DESC NULLS LAST, c.id
		LIMIT $5 OFFSET $6
		`
	args := []any{viewerID, f.CourseID, f.CounterpartID, f.Search, f.Limit(), f.Offset()}
	var rows *sqlx.Rows
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		rows, err = tx.QueryxContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryxContext(ctx, query, args...)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var totalRows int
	conversations := make([]*domain.Conversation, 0)
	for rows.Next() {
		var row conversationRow
		if err = rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		totalRows = row.TotalRows
		conversations = append(conversations, row.toDomain())
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}
	return conversations, totalRows, nil
}

func (r *ConversationRepository) Lock(ctx context.Context, conversationID string) error {
	query := `
		SELECT id FROM conversations
        WHERE id = $1
        FOR UPDATE
        `
	tx := contextGetTX(ctx)
	if tx == nil {
		return errAcquireLockOutsideTX
	}
	var id string
	if err := tx.QueryRowxContext(ctx, query, conversationID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRecordNotFound
		}
		return err
	}
	return nil
}

func (r *ConversationRepository) RecordMessage(
	ctx context.Context,
	conversationID, preview string,
	at time.Time,
	senderIsLearner bool,
) error {
	// the sender bumps the counterpart's unread counter, never its own
	query := `
		UPDATE conversations
		SET last_message_content = $2,
		    last_message_at = $3,
		    learner_unread_count = learner_unread_count + CASE WHEN $4 THEN 0 ELSE 1 END,
		    instructor_unread_count = instructor_unread_count + CASE WHEN $4 THEN 1 ELSE 0 END
		WHERE id = $1
		`
	args := []any{conversationID, preview, at, senderIsLearner}
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, query, args...)
	}
	return err
}

func (r *ConversationRepository) ZeroUnread(ctx context.Context, conversationID string, readerIsLearner bool) error {
	query := `
		UPDATE conversations
		SET learner_unread_count = CASE WHEN $2 THEN 0 ELSE learner_unread_count END,
		    instructor_unread_count = CASE WHEN $2 THEN instructor_unread_count ELSE 0 END
		WHERE id = $1
		`
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		_, err = tx.ExecContext(ctx, query, conversationID, readerIsLearner)
	} else {
		_, err = r.DB.ExecContext(ctx, query, conversationID, readerIsLearner)
	}
	return err
}

func (r *ConversationRepository) CounterpartIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT CASE WHEN learner_id = $1 THEN instructor_id ELSE learner_id END
		FROM conversations
		WHERE learner_id = $1 OR instructor_id = $1
		`
	var rows *sqlx.Rows
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		rows, err = tx.QueryxContext(ctx, query, userID)
	} else {
		rows, err = r.DB.QueryxContext(ctx, query, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
