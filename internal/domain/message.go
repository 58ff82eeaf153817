package domain

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// DeleteWindow is the period after creation during which a sender may
// delete a message for everyone.
const DeleteWindow = 10 * time.Minute

// MaxMessageBody caps the content size of a single message.
const MaxMessageBody = 5120

type DeleteScope string

const (
	// DeleteScopeMe hides the messages from the requester only; the
	// counterpart keeps seeing them unchanged.
	DeleteScopeMe DeleteScope = "me"
	// DeleteScopeEveryone tombstones the messages for all participants.
	DeleteScopeEveryone DeleteScope = "everyone"
)

var rgxUUID = regexp.MustCompile("^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$")

type Message struct {
	ID             string      `json:"id"             db:"id"`
	ConversationID string      `json:"conversationId" db:"conversation_id"`
	SenderID       string      `json:"senderId"       db:"sender_id"`
	Content        string      `json:"content"        db:"content"`
	Attachments    Attachments `json:"attachments"    db:"attachments"`
	CreatedAt      time.Time   `json:"createdAt"      db:"created_at"`
	IsRead         bool        `json:"isRead"         db:"is_read"`
	ReadAt         *time.Time  `json:"readAt"         db:"read_at"`
	// monotonic, a tombstone never reverts to its original content
	IsDeletedForEveryone bool `json:"isDeletedForEveryone" db:"is_deleted_for_everyone"`
	Version              int  `json:"-"                    db:"version"`
}

// Tombstone clears the message in place, keeping only its position and
// timestamp in the thread.
func (m *Message) Tombstone() {
	m.Content = ""
	m.Attachments = Attachments{}
	m.IsDeletedForEveryone = true
}

// DeletableForEveryone reports whether the requester may still tombstone
// this message at the given instant. The client uses it as a pre-check
// only, the authoritative verdict comes from the store's clock.
func (m *Message) DeletableForEveryone(requesterID string, now time.Time) bool {
	return m.SenderID == requesterID && now.Sub(m.CreatedAt) <= DeleteWindow
}

type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"hasMore"`
}

type MessageService interface {
	Send(ctx context.Context, sender *User, p SendMessagePayload) (*Message, *Conversation, error)
	FetchMessages(ctx context.Context, viewerID, conversationID string, offset, limit int) (*MessagePage, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (time.Time, error)
	Delete(ctx context.Context, requesterID string, messageIDs []string, scope DeleteScope) error
}

type MessageRepository interface {
	Insert(ctx context.Context, m *Message) error
	GetPage(ctx context.Context, conversationID, viewerID string, offset, limit int) ([]*Message, int, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string, readAt time.Time) error
	LockForDelete(ctx context.Context, messageIDs []string) ([]*Message, error)
	TombstoneAll(ctx context.Context, messageIDs []string) error
	HideAll(ctx context.Context, messageIDs []string, userID string) error
}

func ValidateMessageDraft(d MessageDraft, ev *ErrValidation) {
	ev.Evaluate(strings.TrimSpace(d.Content) != "" || len(d.Attachments) > 0,
		"message", "must have content or at least one attachment")
	ev.Evaluate(len(d.Content) <= MaxMessageBody, "content", "must be a max of 5120 bytes (5KB) long")
}

func ValidateUUID(field, id string, ev *ErrValidation) {
	ev.Evaluate(rgxUUID.MatchString(id), field, "must be a valid UUID")
}

func ValidateDeleteScope(s DeleteScope, ev *ErrValidation) {
	ev.Evaluate(s == DeleteScopeMe || s == DeleteScopeEveryone, "scope", `must be "me" or "everyone"`)
}
