package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is a top-level post within a channel.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"size:100;not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Screenshot string    `gorm:"size:512" json:"screenshot"`
	UserID     *uint     `gorm:"index" json:"userId"`
	Author     *User     `gorm:"foreignKey:UserID" json:"author,omitempty"`
	ChannelID  uint      `gorm:"index;not null" json:"channelId"`
	Channel    *Channel  `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
	Tags       []string  `gorm:"serializer:tags;type:text" json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BeforeSave keeps the tag list non-nil so it encodes as [].
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return nil
}
