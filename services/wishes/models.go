package wishes

import "time"

type Wish struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Message   string    `gorm:"size:500;not null" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Wish) TableName() string {
	return "wishes"
}
