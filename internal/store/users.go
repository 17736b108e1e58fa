package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pathakanu/remindbot/internal/model"
	"gorm.io/gorm"
)

// UserInput holds the fields of a new user.
type UserInput struct {
	ExternalID int64
	Username   *string
}

// UserPatch holds a partial user update. Only the display name may change.
type UserPatch struct {
	ExternalID *int64
	Username   Optional[string]
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	ExternalID *int64
}

// CreateUser registers a chat identity. ExternalID must be unique.
func (s *Store) CreateUser(ctx context.Context, in UserInput) (*model.User, error) {
	if in.ExternalID == 0 {
		return nil, validation("external_id is required")
	}

	user := model.User{ExternalID: in.ExternalID, Username: trimmedPtr(in.Username)}
	err := s.tx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("external_id = ?", in.ExternalID).Count(&count).Error; err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: user with external_id %d already exists", ErrConflict, in.ExternalID)
		}
		if err := tx.Create(&user).Error; err != nil {
			if isDuplicate(err) {
				return fmt.Errorf("%w: user with external_id %d already exists", ErrConflict, in.ExternalID)
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err, "user", id)
	}
	return &user, nil
}

// ListUsers returns users ordered by id.
func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	query := s.db.WithContext(ctx).Order("id ASC")
	if filter.ExternalID != nil {
		query = query.Where("external_id = ?", *filter.ExternalID)
	}
	users := []model.User{}
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUser changes the display name. Changing ExternalID is rejected.
func (s *Store) UpdateUser(ctx context.Context, id uint, patch UserPatch) (*model.User, error) {
	var user model.User
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return lookupError(err, "user", id)
		}
		if patch.ExternalID != nil && *patch.ExternalID != user.ExternalID {
			return validation("external_id is immutable")
		}
		if patch.Username.Set {
			user.Username = trimmedPtr(patch.Username.Value)
		}
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user together with their reminders and those
// reminders' tag links.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, id).Error; err != nil {
			return lookupError(err, "user", id)
		}

		var reminderIDs []uint
		if err := tx.Model(&model.Reminder{}).Where("user_id = ?", id).Pluck("id", &reminderIDs).Error; err != nil {
			return fmt.Errorf("find user reminders: %w", err)
		}
		if len(reminderIDs) > 0 {
			if err := tx.Exec("DELETE FROM reminder_tags WHERE reminder_id IN ?", reminderIDs).Error; err != nil {
				return fmt.Errorf("delete reminder tags: %w", err)
			}
			if err := tx.Where("id IN ?", reminderIDs).Delete(&model.Reminder{}).Error; err != nil {
				return fmt.Errorf("delete user reminders: %w", err)
			}
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *Store) requireUser(tx *gorm.DB, id uint) error {
	var user model.User
	err := tx.Select("id").First(&user, id).Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return validation("user %d does not exist", id)
	default:
		return fmt.Errorf("find user: %w", err)
	}
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}
