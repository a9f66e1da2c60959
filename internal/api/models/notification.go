package models

import "time"

type Notification struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  string `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind    string `gorm:"not null" json:"kind"` // CHAT_MESSAGE, FAVORITE_UPDATE, POST_DELETED, COMMENT_REPLY
	Title   string `json:"title"`
	Message string `json:"message"`

	// Optional related entity, both nil or both set
	RefType *string `json:"ref_type,omitempty"`
	RefID   *int64  `json:"ref_id,omitempty"`

	// ReadAt is set exactly when Read flips to true; the transition is
	// one-way, rows are never flipped back to unread or deleted here
	Read      bool       `gorm:"default:false" json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`

	// Associations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
