package model

import "time"

// User links an external chat identity to an internal id.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID int64     `gorm:"uniqueIndex;not null" json:"external_id"`
	Username   *string   `gorm:"size:255" json:"username"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
