package refreshtoken

import (
	"time"

	"github.com/tech-arch1tect/portfolio/services/auth"
)

// RefreshToken is one issued refresh token. Only a hash of the token is kept.
// A record is live while it is not revoked and not expired.
type RefreshToken struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"size:36;not null;index"`
	TokenHash  string    `json:"-" gorm:"size:255;not null"`
	FamilyID   string    `json:"family_id" gorm:"size:36;not null;index"`
	IsRevoked  bool      `json:"is_revoked" gorm:"not null;default:false;index"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at"`
	DeviceInfo string    `json:"device_info" gorm:"size:500"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t RefreshToken) IsLive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// TokenPair is what a successful login or rotation hands back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	FamilyID         string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             *auth.User
}
