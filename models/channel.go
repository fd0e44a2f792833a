package models

import "time"

// Channel is a named topic container for messages.
type Channel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	UserID      *uint     `gorm:"index" json:"userId"`
	Creator     *User     `gorm:"foreignKey:UserID" json:"creator,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
