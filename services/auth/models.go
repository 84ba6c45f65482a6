package auth

import "time"

// User is an account. The password hash and the encrypted TOTP secret never
// appear in JSON.
type User struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Email            string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash     string    `gorm:"size:255;not null" json:"-"`
	Name             *string   `gorm:"size:255" json:"name"`
	TOTPSecret       *string   `gorm:"column:totp_secret;size:512" json:"-"`
	TwoFactorEnabled bool      `gorm:"not null;default:false" json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"-"`
}

func (User) TableName() string {
	return "users"
}
