package totp

import "time"

// BackupCode is a bcrypt hash of a single-use recovery code.
type BackupCode struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UserID    string     `json:"user_id" gorm:"size:36;not null;index"`
	CodeHash  string     `json:"-" gorm:"size:255;not null"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (BackupCode) TableName() string {
	return "backup_codes"
}

// UsedCode remembers an accepted TOTP code so it cannot be replayed inside
// its validity window. The unique index settles concurrent logins that
// present the same code.
type UsedCode struct {
	ID     uint   `gorm:"primaryKey"`
	UserID string `gorm:"size:36;uniqueIndex:idx_user_code,priority:1;not null"`
	Code   string `gorm:"size:6;uniqueIndex:idx_user_code,priority:2;not null"`
	UsedAt int64  `gorm:"index:idx_used_at;not null"`
}

func (UsedCode) TableName() string {
	return "totp_used_codes"
}

type Enrollment struct {
	Secret          string
	FormattedSecret string
	URI             string
	QRCode          string
}
