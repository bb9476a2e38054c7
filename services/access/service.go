// Package access decides who may talk to the assistant and who may
// administer it.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

// Service checks and edits the allow-list
type Service struct {
	repo   repositories.AccessRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new access Service
func NewService(repo repositories.AccessRepository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Seed adds the configured users and admins. Existing entries keep their
// grant history but admins listed here are promoted.
func (s *Service) Seed(ctx context.Context, users, admins []string) error {
	for _, id := range users {
		if err := s.seedOne(ctx, id, models.RoleUser); err != nil {
			return err
		}
	}
	for _, id := range admins {
		if err := s.seedOne(ctx, id, models.RoleAdmin); err != nil {
			return err
		}
	}

	s.logger.Info("access list seeded",
		zap.Int("users", len(users)),
		zap.Int("admins", len(admins)))
	return nil
}

func (s *Service) seedOne(ctx context.Context, userID string, role models.Role) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}

	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read access entry: %w", err)
	}
	if existing != nil && (existing.IsAdmin() || role == models.RoleUser) {
		return nil
	}

	entry := &models.AccessEntry{UserID: userID, Role: role, CreatedAt: s.now()}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to seed access entry: %w", err)
	}
	return nil
}

// IsAllowed reports whether the user may use the assistant. Admins are
// implicitly allowed.
func (s *Service) IsAllowed(ctx context.Context, userID string) (bool, error) {
	entry, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, services.WrapInternal("failed to check access", err)
	}
	return entry != nil, nil
}

// IsAdmin reports whether the user holds the admin role
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	entry, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, services.WrapInternal("failed to check admin role", err)
	}
	return entry != nil && entry.IsAdmin(), nil
}

// List returns every allow-listed user
func (s *Service) List(ctx context.Context) ([]*models.AccessEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list access entries", err)
	}
	return entries, nil
}

// Grant adds target to the allow-list. changed is false when the user was
// already listed.
func (s *Service) Grant(ctx context.Context, actorID, targetID string) (bool, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return false, services.ErrInvalidInput
	}
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return false, err
	}

	existing, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return false, services.WrapInternal("failed to read access entry", err)
	}
	if existing != nil {
		return false, nil
	}

	entry := &models.AccessEntry{
		UserID:    targetID,
		Role:      models.RoleUser,
		GrantedBy: actorID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return false, services.WrapInternal("failed to grant access", err)
	}

	s.logger.Info("access granted",
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID))
	return true, nil
}

// Revoke removes target from the allow-list. changed is false when the user
// was not listed. Admins cannot be revoked.
func (s *Service) Revoke(ctx context.Context, actorID, targetID string) (bool, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return false, services.ErrInvalidInput
	}
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return false, err
	}

	existing, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return false, services.WrapInternal("failed to read access entry", err)
	}
	if existing == nil {
		return false, nil
	}
	if existing.IsAdmin() {
		return false, services.NewDomainError(services.ErrorTypeConflict, "admin users cannot be revoked", nil).
			WithDetail("user_id", targetID)
	}

	deleted, err := s.repo.Delete(ctx, targetID)
	if err != nil {
		return false, services.WrapInternal("failed to revoke access", err)
	}

	s.logger.Info("access revoked",
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID))
	return deleted, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	admin, err := s.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return services.NewDomainError(services.ErrorTypeForbidden, "admin privileges required", nil).
			WithDetail("user_id", actorID)
	}
	return nil
}
