package facade

type Facade struct {
	*UserFacade
	*ConversationFacade
	*MessageFacade
}

func New(uf *UserFacade, cf *ConversationFacade, mf *MessageFacade) *Facade {
	return &Facade{
		UserFacade:         uf,
		ConversationFacade: cf,
		MessageFacade:      mf,
	}
}
