package facade

import (
	"context"

	"github.com/edusphere/courseline/internal/api/presence"
	"github.com/edusphere/courseline/internal/api/service"
	"github.com/edusphere/courseline/internal/domain"
)

type ConversationFacade struct {
	service *service.Service
	tracker *presence.Tracker
}

func NewConversationFacade(srv *service.Service, tracker *presence.Tracker) *ConversationFacade {
	return &ConversationFacade{service: srv, tracker: tracker}
}

// GetConversations lists the viewer's conversations with the presence
// overlay applied; isOnline never comes from the conversation rows.
func (f *ConversationFacade) GetConversations(
	ctx context.Context,
	viewer *domain.User,
	filter domain.ConversationFilter,
) (*domain.ConversationPage, error) {
	page, err := f.service.ListConversations(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(page.Conversations))
	for i, c := range page.Conversations {
		ids[i] = c.Counterpart.ID
	}
	online, err := f.tracker.Online(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, c := range page.Conversations {
		c.IsOnline = online[c.Counterpart.ID]
	}
	return page, nil
}

func (f *ConversationFacade) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return f.service.GetConversation(ctx, conversationID)
}

// ConversationForUser resolves one participant's view of the
// conversation, counterpart fields and presence included, for the
// conversationUpdated push.
func (f *ConversationFacade) ConversationForUser(ctx context.Context, conversationID, viewerID string) (*domain.Conversation, error) {
	convo, err := f.service.ConversationForUser(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	online, err := f.tracker.Online(ctx, convo.Counterpart.ID)
	if err != nil {
		return nil, err
	}
	convo.IsOnline = online[convo.Counterpart.ID]
	return convo, nil
}

func (f *ConversationFacade) CounterpartIDs(ctx context.Context, userID string) ([]string, error) {
	return f.service.CounterpartIDs(ctx, userID)
}
