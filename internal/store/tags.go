package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pathakanu/remindbot/internal/model"
	"gorm.io/gorm"
)

// TagInput holds the fields of a new tag.
type TagInput struct {
	Name   string
	ChatID int64
}

// TagPatch holds a partial tag update. Tags cannot move between chats.
type TagPatch struct {
	Name   *string
	ChatID *int64
}

// TagFilter narrows ListTags.
type TagFilter struct {
	ChatID *int64
}

// CreateTag adds a tag to a chat. Names are unique per chat.
func (s *Store) CreateTag(ctx context.Context, in TagInput) (*model.Tag, error) {
	tag := model.Tag{Name: strings.TrimSpace(in.Name), ChatID: in.ChatID}
	if tag.Name == "" {
		return nil, validation("name is required")
	}
	if tag.ChatID == 0 {
		return nil, validation("chat_id is required")
	}

	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := ensureTagNameFree(tx, tag.ChatID, tag.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&tag).Error; err != nil {
			if isDuplicate(err) {
				return tagConflict(tag.ChatID, tag.Name)
			}
			return fmt.Errorf("create tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetTag fetches a tag by id.
func (s *Store) GetTag(ctx context.Context, id uint) (*model.Tag, error) {
	var tag model.Tag
	if err := s.db.WithContext(ctx).First(&tag, id).Error; err != nil {
		return nil, lookupError(err, "tag", id)
	}
	return &tag, nil
}

// ListTags returns tags ordered by name.
func (s *Store) ListTags(ctx context.Context, filter TagFilter) ([]model.Tag, error) {
	query := s.db.WithContext(ctx).Order("name ASC, id ASC")
	if filter.ChatID != nil {
		query = query.Where("chat_id = ?", *filter.ChatID)
	}
	tags := []model.Tag{}
	if err := query.Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// UpdateTag renames a tag. Any caller may rename or delete a tag; there is
// no ownership check on tags.
func (s *Store) UpdateTag(ctx context.Context, id uint, patch TagPatch) (*model.Tag, error) {
	var tag model.Tag
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&tag, id).Error; err != nil {
			return lookupError(err, "tag", id)
		}
		if patch.ChatID != nil && *patch.ChatID != tag.ChatID {
			return validation("chat_id is immutable")
		}
		if patch.Name == nil {
			return nil
		}
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return validation("name is required")
		}
		if err := ensureTagNameFree(tx, tag.ChatID, name, tag.ID); err != nil {
			return err
		}
		tag.Name = name
		if err := tx.Save(&tag).Error; err != nil {
			if isDuplicate(err) {
				return tagConflict(tag.ChatID, name)
			}
			return fmt.Errorf("update tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// DeleteTag removes a tag and unlinks it from every reminder.
func (s *Store) DeleteTag(ctx context.Context, id uint) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var tag model.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			return lookupError(err, "tag", id)
		}
		if err := tx.Exec("DELETE FROM reminder_tags WHERE tag_id = ?", tag.ID).Error; err != nil {
			return fmt.Errorf("unlink tag: %w", err)
		}
		if err := tx.Delete(&tag).Error; err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
}

func ensureTagNameFree(tx *gorm.DB, chatID int64, name string, exceptID uint) error {
	var existing model.Tag
	err := tx.Where("chat_id = ? AND name = ?", chatID, name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("find tag: %w", err)
	case existing.ID == exceptID:
		return nil
	default:
		return tagConflict(chatID, name)
	}
}

func tagConflict(chatID int64, name string) error {
	return fmt.Errorf("%w: tag %q already exists in chat %d", ErrConflict, name, chatID)
}

// resolveTags returns the chat's tags for names, creating missing ones.
// Blank and repeated names are dropped.
func resolveTags(tx *gorm.DB, chatID int64, names []string) ([]model.Tag, error) {
	seen := make(map[string]struct{}, len(names))
	tags := make([]model.Tag, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		var tag model.Tag
		err := tx.Where("chat_id = ? AND name = ?", chatID, name).First(&tag).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			tag = model.Tag{Name: name, ChatID: chatID}
			if err := tx.Create(&tag).Error; err != nil {
				return nil, fmt.Errorf("create tag: %w", err)
			}
		default:
			return nil, fmt.Errorf("find tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func linkTags(tx *gorm.DB, reminder *model.Reminder, names []string) error {
	tags, err := resolveTags(tx, reminder.ChatID, names)
	if err != nil {
		return err
	}
	association := tx.Model(reminder).Association("Tags")
	if len(tags) == 0 {
		err = association.Clear()
	} else {
		err = association.Replace(tags)
	}
	if err != nil {
		return fmt.Errorf("link reminder tags: %w", err)
	}
	return nil
}
