package wishes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxNameLength    = 100
	MaxMessageLength = 500
	MaxListSize      = 100
)

var (
	ErrNameRequired    = errors.New("name is required")
	ErrMessageRequired = errors.New("message is required")
	ErrNameTooLong     = fmt.Errorf("name must be at most %d characters", MaxNameLength)
	ErrMessageTooLong  = fmt.Errorf("message must be at most %d characters", MaxMessageLength)
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing wishes service")
	}
	return &Service{db: db, logger: logger}
}

// Create stores a wish after trimming both fields. Lengths are counted in
// characters, not bytes.
func (s *Service) Create(ctx context.Context, name, message string) (*Wish, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)

	switch {
	case name == "":
		return nil, ErrNameRequired
	case message == "":
		return nil, ErrMessageRequired
	case utf8.RuneCountInString(name) > MaxNameLength:
		return nil, ErrNameTooLong
	case utf8.RuneCountInString(message) > MaxMessageLength:
		return nil, ErrMessageTooLong
	}

	wish := &Wish{Name: name, Message: message}
	if err := s.db.WithContext(ctx).Create(wish).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store wish", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to store wish: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("wish created", zap.Uint("wish_id", wish.ID))
	}
	return wish, nil
}

// List returns the newest wishes first. limit is clamped to MaxListSize.
func (s *Service) List(ctx context.Context, limit int) ([]Wish, error) {
	if limit <= 0 || limit > MaxListSize {
		limit = MaxListSize
	}

	var wishes []Wish
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&wishes).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch wishes: %w", err)
	}
	return wishes, nil
}
