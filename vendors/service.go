package vendors

import (
	"context"

	"squares/auth"
	"squares/listing"
)

// ProfileReader abstracts repository operations for the service.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context, limit int) ([]Profile, error)
}

// Service exposes vendor lookups with role checks.
type Service struct {
	repo ProfileReader
}

func NewService(repo ProfileReader) *Service {
	return &Service{repo: repo}
}

// Get returns a vendor profile. Vendors may only read their own.
func (s *Service) Get(ctx context.Context, actor listing.Actor, id string) (Profile, error) {
	if !actor.Role.IsStaff() && !(actor.Role == auth.RoleVendor && actor.ID == id) {
		return Profile{}, ErrForbidden
	}
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit vendor profiles for staff.
func (s *Service) List(ctx context.Context, actor listing.Actor, limit int) ([]Profile, error) {
	if !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, limit)
}
