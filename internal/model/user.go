package model

import "time"

// User is a chatbot owner. DisplayName feeds the public share id; Username is the login.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	DisplayName  string    `gorm:"size:128" json:"display_name"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OwnerName is the name used to build share ids.
func (u *User) OwnerName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
