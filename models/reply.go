package models

import "time"

// Reply comments on a message, or on another reply of the same message when ParentReplyID is set.
type Reply struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	Screenshot    string    `gorm:"size:512" json:"screenshot"`
	UserID        *uint     `gorm:"index" json:"userId"`
	Author        *User     `gorm:"foreignKey:UserID" json:"author,omitempty"`
	MessageID     uint      `gorm:"index;not null" json:"messageId"`
	Message       *Message  `gorm:"foreignKey:MessageID" json:"message,omitempty"`
	ParentReplyID *uint     `gorm:"index" json:"parentReplyId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
