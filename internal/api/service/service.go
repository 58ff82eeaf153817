package service

import "github.com/edusphere/courseline/internal/domain"

type Service struct {
	*UserService
	*ConversationService
	*MessageService
}

func New(us *UserService, cs *ConversationService, ms *MessageService) *Service {
	return &Service{
		UserService:         us,
		ConversationService: cs,
		MessageService:      ms,
	}
}

var (
	_ domain.ConversationService = (*ConversationService)(nil)
	_ domain.MessageService      = (*MessageService)(nil)
)
