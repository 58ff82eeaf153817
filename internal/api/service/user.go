package service

import (
	"context"
	"crypto/sha256"

	"github.com/edusphere/courseline/internal/domain"
)

type UserService struct {
	userRepo domain.UserRepository
}

func NewUserService(userRepo domain.UserRepository) *UserService {
	return &UserService{userRepo}
}

func (s *UserService) VerifyAuthToken(ctx context.Context, token string) (*domain.User, error) {
	hash := sha256.Sum256([]byte(token))
	return s.userRepo.GetForToken(ctx, hash[:])
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
