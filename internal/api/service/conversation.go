package service

import (
	"context"

	"github.com/edusphere/courseline/internal/domain"
)

type ConversationService struct {
	conversationRepo domain.ConversationRepository
}

func NewConversationService(conversationRepo domain.ConversationRepository) *ConversationService {
	return &ConversationService{conversationRepo}
}

func (s *ConversationService) ListConversations(
	ctx context.Context,
	viewer *domain.User,
	f domain.ConversationFilter,
) (*domain.ConversationPage, error) {
	ev := domain.NewErrValidation()
	domain.ValidateFilters(ev, &f.Filter)
	if f.CourseID != "" {
		domain.ValidateUUID("courseId", f.CourseID, ev)
	}
	if f.CounterpartID != "" {
		domain.ValidateUUID("counterpartId", f.CounterpartID, ev)
	}
	if ev.HasErrors() {
		return nil, ev
	}
	convos, total, err := s.conversationRepo.List(ctx, viewer.ID, f)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationPage{
		Conversations: convos,
		Metadata:      domain.CalculateMetadata(total, f.PageSize, f.Page),
	}, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.conversationRepo.GetByID(ctx, conversationID)
}

// ConversationForUser returns the viewer's side of the conversation, the
// counterpart fields name the other participant.
func (s *ConversationService) ConversationForUser(ctx context.Context, conversationID, viewerID string) (*domain.Conversation, error) {
	return s.conversationRepo.GetForUser(ctx, conversationID, viewerID)
}

// CounterpartIDs lists every user sharing at least one conversation with
// the given user; presence transitions fan out to exactly this set.
func (s *ConversationService) CounterpartIDs(ctx context.Context, userID string) ([]string, error) {
	return s.conversationRepo.CounterpartIDs(ctx, userID)
}
