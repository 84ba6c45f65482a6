package refreshtoken

import (
	"context"
	"fmt"
	"time"

	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger persists refresh token records.
type Ledger interface {
	Insert(ctx context.Context, userID, tokenHash, familyID string, expiresAt time.Time, deviceInfo string) (*RefreshToken, error)
	FindLiveByFamily(ctx context.Context, userID, familyID string) ([]RefreshToken, error)
	// Revoke flips one record from live to revoked and reports whether this
	// call made the change. A false result means another caller got there first.
	Revoke(ctx context.Context, id uint) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type GormLedger struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewGormLedger(db *gorm.DB, logger *logging.Service) *GormLedger {
	return &GormLedger{db: db, logger: logger, now: time.Now}
}

func (l *GormLedger) Insert(ctx context.Context, userID, tokenHash, familyID string, expiresAt time.Time, deviceInfo string) (*RefreshToken, error) {
	record := &RefreshToken{
		UserID:     userID,
		TokenHash:  tokenHash,
		FamilyID:   familyID,
		ExpiresAt:  expiresAt,
		CreatedAt:  l.now(),
		DeviceInfo: deviceInfo,
	}

	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		if l.logger != nil {
			l.logger.Error("failed to store refresh token", zap.Error(err), zap.String("user_id", userID))
		}
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return record, nil
}

func (l *GormLedger) FindLiveByFamily(ctx context.Context, userID, familyID string) ([]RefreshToken, error) {
	var records []RefreshToken
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND family_id = ? AND is_revoked = ? AND expires_at > ?", userID, familyID, false, l.now()).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh token family: %w", err)
	}
	return records, nil
}

func (l *GormLedger) Revoke(ctx context.Context, id uint) (bool, error) {
	result := l.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("id = ? AND is_revoked = ?", id, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (l *GormLedger) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	result := l.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("family_id = ? AND is_revoked = ?", familyID, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke refresh token family: %w", result.Error)
	}

	if l.logger != nil {
		l.logger.Info("refresh token family revoked",
			zap.String("family_id", familyID),
			zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (l *GormLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	result := l.db.WithContext(ctx).
		Model(&RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
	}

	if l.logger != nil {
		l.logger.Info("all user refresh tokens revoked",
			zap.String("user_id", userID),
			zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes records that expired before the cutoff. Revoked but
// unexpired records stay so reuse of their tokens is still detected.
func (l *GormLedger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := l.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
