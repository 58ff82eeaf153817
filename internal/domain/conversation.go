package domain

import (
	"context"
	"time"
)

type Course struct {
	ID   string `json:"id"   db:"course_id"`
	Name string `json:"name" db:"course_name"`
}

// Counterpart is the other participant as seen by the viewer, the
// instructor from the learner's side and vice versa.
type Counterpart struct {
	ID             string `json:"id"             db:"counterpart_id"`
	Name           string `json:"name"           db:"counterpart_name"`
	ProfilePicture string `json:"profilePicture" db:"counterpart_picture"`
}

// Conversation is the unique thread between one learner, one instructor
// and one course. ID stays nil until the first message persists the row,
// before that the (learner, instructor, course) triple is the identity.
type Conversation struct {
	ID                    *string     `json:"id"`
	Course                Course      `json:"course"`
	Counterpart           Counterpart `json:"counterpart"`
	LastMessageContent    string      `json:"lastMessageContent"`
	LastMessageAt         *time.Time  `json:"lastMessageAt"`
	LearnerUnreadCount    int         `json:"learnerUnreadCount"`
	InstructorUnreadCount int         `json:"instructorUnreadCount"`
	// derived from the presence tracker at read time, never stored
	IsOnline bool `json:"isOnline"`

	// participant ids, populated server side only
	LearnerID    string `json:"-"`
	InstructorID string `json:"-"`
}

// UnreadFor returns the viewer's own unread counter.
func (c *Conversation) UnreadFor(role string) int {
	if role == RoleInstructor {
		return c.InstructorUnreadCount
	}
	return c.LearnerUnreadCount
}

type ConversationFilter struct {
	CourseID      string
	CounterpartID string
	Search        string
	Filter
}

type ConversationPage struct {
	Conversations []*Conversation `json:"conversations"`
	Metadata      Metadata        `json:"metadata"`
}

type ConversationService interface {
	ListConversations(ctx context.Context, viewer *User, f ConversationFilter) (*ConversationPage, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ConversationForUser(ctx context.Context, conversationID, viewerID string) (*Conversation, error)
}

type ConversationRepository interface {
	// Upsert resolves the triple to its canonical id, creating the row
	// on first use. All participants converge on the returned id.
	Upsert(ctx context.Context, courseID, learnerID, instructorID string) (string, error)
	GetByID(ctx context.Context, conversationID string) (*Conversation, error)
	// GetForUser returns the conversation with the counterpart fields
	// resolved from the viewer's side.
	GetForUser(ctx context.Context, conversationID, viewerID string) (*Conversation, error)
	List(ctx context.Context, viewerID string, f ConversationFilter) ([]*Conversation, int, error)
	// Lock takes the per-conversation row lock serializing counter and
	// tombstone mutations for the enclosing transaction.
	Lock(ctx context.Context, conversationID string) error
	RecordMessage(ctx context.Context, conversationID, preview string, at time.Time, senderIsLearner bool) error
	ZeroUnread(ctx context.Context, conversationID string, readerIsLearner bool) error
	CounterpartIDs(ctx context.Context, userID string) ([]string, error)
}
