package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Level is the self-declared experience level of a user.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelExpert       Level = "Expert"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelExpert:
		return true
	}
	return false
}

// User represents a channel member. Passwords are stored as bcrypt hashes only.
// Deleting a user anonymizes the row instead of removing it so authored content keeps its owner.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:255" json:"-"`
	Avatar       string     `gorm:"size:512" json:"avatar"`
	Level        Level      `gorm:"size:16;default:'Beginner'" json:"level"`
	IsAdmin      bool       `gorm:"default:false" json:"isAdmin"`
	Provider     string     `gorm:"size:32" json:"provider,omitempty"`
	ProviderID   string     `gorm:"size:255;index" json:"-"`
	AnonymizedAt *time.Time `gorm:"index" json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Anonymized reports whether the account was deleted by an administrator.
func (u *User) Anonymized() bool {
	return u.AnonymizedAt != nil
}

// DisplayName is the public name of an anonymized account.
func (u *User) DisplayName() string {
	return fmt.Sprintf("Deleted User %d", u.ID)
}

// MarshalJSON hides the identity of anonymized accounts. The stored columns are kept intact.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	out := struct {
		plain
		Anonymized bool `json:"anonymized,omitempty"`
	}{plain: plain(u)}
	if u.AnonymizedAt != nil {
		out.Username = u.DisplayName()
		out.Email = ""
		out.Avatar = ""
		out.Provider = ""
		out.IsAdmin = false
		out.Anonymized = true
	}
	return json.Marshal(out)
}

// BeforeCreate hook ensures timestamps and level are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Level == "" {
		u.Level = LevelBeginner
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
