package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edusphere/courseline/internal/domain"
	"github.com/google/uuid"
)

// TXManager runs a function inside a single database transaction; the
// per-conversation row lock taken within serializes concurrent sends,
// read receipts and deletes on the same conversation.
type TXManager interface {
	RunInTX(ctx context.Context, fn func(ctx context.Context) error) error
}

type MessageService struct {
	messageRepo      domain.MessageRepository
	conversationRepo domain.ConversationRepository
	userRepo         domain.UserRepository
	txMan            TXManager
	now              func() time.Time
}

func NewMessageService(
	messageRepo domain.MessageRepository,
	conversationRepo domain.ConversationRepository,
	userRepo domain.UserRepository,
	txMan TXManager,
) *MessageService {
	return &MessageService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		txMan:            txMan,
		now:              time.Now,
	}
}

// Send persists one message, creating the conversation row on first
// contact. The returned conversation carries the canonical id a sender
// with a virtual (nil) id must adopt, plus the authoritative counters
// for the conversationUpdated fan-out.
func (s *MessageService) Send(
	ctx context.Context,
	sender *domain.User,
	p domain.SendMessagePayload,
) (*domain.Message, *domain.Conversation, error) {
	if ev := p.Validate(); ev != nil {
		return nil, nil, ev
	}
	receiver, err := s.userRepo.GetByID(ctx, p.ReceiverID)
	if err != nil {
		return nil, nil, err
	}
	if receiver.Role == sender.Role {
		ev := domain.NewErrValidation()
		ev.AddError("receiverId", "conversations connect a learner with an instructor")
		return nil, nil, ev
	}
	learnerID, instructorID := sender.ID, receiver.ID
	if !sender.IsLearner() {
		learnerID, instructorID = receiver.ID, sender.ID
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		SenderID:    sender.ID,
		Content:     strings.TrimSpace(p.Message.Content),
		Attachments: p.Message.Attachments,
		CreatedAt:   s.now().UTC(),
	}
	if msg.Attachments == nil {
		msg.Attachments = domain.Attachments{}
	}

	var convo *domain.Conversation
	err = s.txMan.RunInTX(ctx, func(ctx context.Context) error {
		convoID, err := s.resolveConversation(ctx, sender.ID, p.ConversationID, p.CourseID, learnerID, instructorID)
		if err != nil {
			return err
		}
		if err = s.conversationRepo.Lock(ctx, convoID); err != nil {
			return err
		}
		msg.ConversationID = convoID
		if err = s.messageRepo.Insert(ctx, msg); err != nil {
			return err
		}
		if err = s.conversationRepo.RecordMessage(ctx, convoID, preview(msg), msg.CreatedAt, sender.IsLearner()); err != nil {
			return err
		}
		convo, err = s.conversationRepo.GetByID(ctx, convoID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, convo, nil
}

func (s *MessageService) resolveConversation(
	ctx context.Context,
	senderID string,
	conversationID *string,
	courseID, learnerID, instructorID string,
) (string, error) {
	if conversationID == nil {
		return s.conversationRepo.Upsert(ctx, courseID, learnerID, instructorID)
	}
	convo, err := s.conversationRepo.GetByID(ctx, *conversationID)
	if err != nil {
		return "", err
	}
	if convo.LearnerID != senderID && convo.InstructorID != senderID {
		return "", domain.ErrPermissionDenied
	}
	return *conversationID, nil
}

func (s *MessageService) FetchMessages(
	ctx context.Context,
	viewerID, conversationID string,
	offset, limit int,
) (*domain.MessagePage, error) {
	ev := domain.NewErrValidation()
	domain.ValidateUUID("conversationId", conversationID, ev)
	ev.Evaluate(offset >= 0, "offset", "must not be negative")
	ev.Evaluate(limit > 0 && limit <= 100, "limit", "must be between 1 and 100")
	if ev.HasErrors() {
		return nil, ev
	}
	convo, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if convo.LearnerID != viewerID && convo.InstructorID != viewerID {
		return nil, domain.ErrPermissionDenied
	}
	msgs, total, err := s.messageRepo.GetPage(ctx, conversationID, viewerID, offset, limit)
	if err != nil {
		return nil, err
	}
	// the repo returns newest-first, flip to chronological ascending
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return &domain.MessagePage{
		Messages: msgs,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

// MarkRead flips every unread message not authored by the reader and
// zeroes the reader's own unread counter.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID string) (time.Time, error) {
	readAt := s.now().UTC()
	err := s.txMan.RunInTX(ctx, func(ctx context.Context) error {
		convo, err := s.conversationRepo.GetByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if convo.LearnerID != readerID && convo.InstructorID != readerID {
			return domain.ErrPermissionDenied
		}
		if err = s.conversationRepo.Lock(ctx, conversationID); err != nil {
			return err
		}
		if err = s.messageRepo.MarkConversationRead(ctx, conversationID, readerID, readAt); err != nil {
			return err
		}
		return s.conversationRepo.ZeroUnread(ctx, conversationID, convo.LearnerID == readerID)
	})
	if err != nil {
		return time.Time{}, err
	}
	return readAt, nil
}

// Delete applies the requested scope. EVERYONE is all-or-nothing: every
// targeted message must be authored by the requester and still inside
// the delete window, checked under row locks against this clock; a
// single violation rejects the whole batch untouched.
func (s *MessageService) Delete(
	ctx context.Context,
	requesterID string,
	messageIDs []string,
	scope domain.DeleteScope,
) error {
	ev := domain.NewErrValidation()
	ev.Evaluate(len(messageIDs) > 0, "messageIds", "must not be empty")
	domain.ValidateDeleteScope(scope, ev)
	for _, id := range messageIDs {
		domain.ValidateUUID("messageIds", id, ev)
	}
	if ev.HasErrors() {
		return ev
	}
	if scope == domain.DeleteScopeMe {
		return s.messageRepo.HideAll(ctx, messageIDs, requesterID)
	}
	return s.txMan.RunInTX(ctx, func(ctx context.Context) error {
		msgs, err := s.messageRepo.LockForDelete(ctx, messageIDs)
		if err != nil {
			return err
		}
		if len(msgs) != len(messageIDs) {
			return domain.ErrRecordNotFound
		}
		now := s.now()
		for _, m := range msgs {
			if m.SenderID != requesterID {
				return fmt.Errorf("message %s: %w", m.ID, domain.ErrPermissionDenied)
			}
			if m.IsDeletedForEveryone {
				continue // re-deleting a tombstone is a no-op, replays stay valid past the window
			}
			if now.Sub(m.CreatedAt) > domain.DeleteWindow {
				return fmt.Errorf("message %s: %w", m.ID, domain.ErrWindowExpired)
			}
		}
		return s.messageRepo.TombstoneAll(ctx, messageIDs)
	})
}

func preview(m *domain.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if len(m.Attachments) > 0 {
		return m.Attachments[0].FileName
	}
	return ""
}
