package models

import "time"

// TargetType discriminates what a rating points at.
type TargetType string

const (
	TargetMessage TargetType = "message"
	TargetReply   TargetType = "reply"
)

// Valid reports whether t is a rateable entity.
func (t TargetType) Valid() bool {
	return t == TargetMessage || t == TargetReply
}

// Rating is a +1/-1 vote. A user holds at most one rating per target.
type Rating struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Value      int        `gorm:"not null;check:chk_ratings_value,value = 1 OR value = -1" json:"value"`
	UserID     *uint      `gorm:"uniqueIndex:idx_ratings_owner_target,priority:1" json:"userId"`
	TargetType TargetType `gorm:"size:16;not null;uniqueIndex:idx_ratings_owner_target,priority:2;index:idx_ratings_target,priority:1" json:"targetType"`
	TargetID   uint       `gorm:"not null;uniqueIndex:idx_ratings_owner_target,priority:3;index:idx_ratings_target,priority:2" json:"targetId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// All returns every model managed by the application in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Channel{}, &Message{}, &Reply{}, &Rating{}}
}
