package facade

import (
	"context"
	"time"

	"github.com/edusphere/courseline/internal/api/service"
	"github.com/edusphere/courseline/internal/domain"
)

type MessageFacade struct {
	service *service.Service
}

func NewMessageFacade(srv *service.Service) *MessageFacade {
	return &MessageFacade{srv}
}

func (f *MessageFacade) SendMessage(
	ctx context.Context,
	sender *domain.User,
	p domain.SendMessagePayload,
) (*domain.Message, *domain.Conversation, error) {
	return f.service.Send(ctx, sender, p)
}

func (f *MessageFacade) FetchMessages(
	ctx context.Context,
	viewerID, conversationID string,
	offset, limit int,
) (*domain.MessagePage, error) {
	return f.service.FetchMessages(ctx, viewerID, conversationID, offset, limit)
}

func (f *MessageFacade) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (time.Time, error) {
	return f.service.MarkRead(ctx, conversationID, readerID)
}

func (f *MessageFacade) DeleteMessages(
	ctx context.Context,
	requesterID string,
	messageIDs []string,
	scope domain.DeleteScope,
) error {
	return f.service.Delete(ctx, requesterID, messageIDs, scope)
}
