package model

// Tag is a label scoped to a chat. Names are unique per chat.
type Tag struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"size:255;not null;uniqueIndex:idx_tag_chat_name" json:"name"`
	ChatID int64  `gorm:"not null;uniqueIndex:idx_tag_chat_name" json:"chat_id"`
}

// All lists every persisted model in migration order.
func All() []any {
	return []any{&User{}, &Tag{}, &Reminder{}}
}
