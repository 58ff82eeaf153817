package facade

import (
	"context"

	"github.com/edusphere/courseline/internal/api/service"
	"github.com/edusphere/courseline/internal/domain"
)

type UserFacade struct {
	service *service.Service
}

func NewUserFacade(srv *service.Service) *UserFacade {
	return &UserFacade{srv}
}

func (f *UserFacade) VerifyAuthToken(ctx context.Context, token string) (*domain.User, error) {
	return f.service.VerifyAuthToken(ctx, token)
}

func (f *UserFacade) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return f.service.GetUser(ctx, id)
}
