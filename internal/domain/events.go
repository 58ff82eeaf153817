package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire contract of the event channel. Field names and nesting are fixed,
// both halves of this repo and any interoperating peer depend on them.

// client -> server
const (
	EventRegister         = "register"
	EventJoinChat         = "joinChat"
	EventLeaveChat        = "leaveChat"
	EventSendMessage      = "sendMessage"
	EventMarkMessagesRead = "markMessagesRead"
	EventTyping           = "typing"
	EventDeleteMessage    = "deleteMessage"
)

// server -> client
const (
	EventAck                     = "ack"
	EventReceiveMessage          = "receiveMessage"
	EventConversationUpdated     = "conversationUpdated"
	EventMessagesRead            = "messagesRead"
	EventUserTyping              = "userTyping"
	EventLearnerStatusChanged    = "learnerStatusChanged"
	EventInstructorStatusChanged = "instructorStatusChanged"
	EventMessageDeleted          = "messageDeleted"
)

// Event is one channel frame. ID is the correlation id; only
// sendMessage carries one, and the matching ack echoes it back.
type Event struct {
	Name string          `json:"event"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(name, id string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return &Event{Name: name, ID: id, Data: data}, nil
}

func (e *Event) Decode(into any) error {
	if err := json.Unmarshal(e.Data, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

type EventChan chan *Event

type RegisterPayload struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

type JoinChatPayload struct {
	ConversationID string `json:"conversationId"`
}

type MessageDraft struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	// nil for a virtual conversation, the ack hands back the canonical id
	ConversationID *string      `json:"conversationId"`
	Message        MessageDraft `json:"message"`
	CourseID       string       `json:"courseId"`
}

type SendMessageResponse struct {
	Success        bool     `json:"success"`
	Message        *Message `json:"message,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type MarkMessagesReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type DeleteMessagePayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type ReceiveMessagePayload struct {
	Message        *Message `json:"message"`
	ConversationID string   `json:"conversationId"`
}

type ConversationUpdatedPayload struct {
	Conversation *Conversation `json:"conversation"`
}

type MessagesReadPayload struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type LearnerStatusPayload struct {
	LearnerID string `json:"learnerId"`
	IsOnline  bool   `json:"isOnline"`
}

type InstructorStatusPayload struct {
	InstructorID string `json:"instructorId"`
	IsOnline     bool   `json:"isOnline"`
}

type MessageDeletedPayload struct {
	MessageIDs []string `json:"messageIds"`
}

// StatusChangedEvent builds the role-appropriate presence event for the
// user whose status transitioned.
func StatusChangedEvent(u *User, online bool) (*Event, error) {
	if u.Role == RoleInstructor {
		return NewEvent(EventInstructorStatusChanged, "", InstructorStatusPayload{InstructorID: u.ID, IsOnline: online})
	}
	return NewEvent(EventLearnerStatusChanged, "", LearnerStatusPayload{LearnerID: u.ID, IsOnline: online})
}

func (p SendMessagePayload) Validate() *ErrValidation {
	ev := NewErrValidation()
	ValidateUUID("receiverId", p.ReceiverID, ev)
	ValidateUUID("courseId", p.CourseID, ev)
	if p.ConversationID != nil {
		ValidateUUID("conversationId", *p.ConversationID, ev)
	}
	ValidateMessageDraft(p.Message, ev)
	for _, a := range p.Message.Attachments {
		ValidateAttachment(a, ev)
	}
	if ev.HasErrors() {
		return ev
	}
	return nil
}
