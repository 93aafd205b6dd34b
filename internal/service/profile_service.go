package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/repository"
)

type ProfileService struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

func NewProfileService(userRepo repository.UserRepository) *ProfileService {
	return &ProfileService{userRepo: userRepo, now: time.Now}
}

// List returns every profile except the caller's.
func (s *ProfileService) List(ctx context.Context, userID uuid.UUID) ([]domain.Profile, error) {
	profiles, err := s.userRepo.ListProfiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	return profiles, nil
}

// SetPresence records userID as online or offline and returns the change.
func (s *ProfileService) SetPresence(ctx context.Context, userID uuid.UUID, status string) (domain.Presence, error) {
	p := domain.Presence{UserID: userID, Status: status, At: s.now()}
	if err := s.userRepo.SetStatus(ctx, userID, status, p.At); err != nil {
		return domain.Presence{}, err
	}
	return p, nil
}
