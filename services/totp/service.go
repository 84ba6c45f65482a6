package totp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// codes stay in the replay table for the whole skew window
const replayWindow = 90 * time.Second

var (
	ErrTOTPDisabled    = errors.New("two-factor authentication is disabled")
	ErrAlreadyEnabled  = errors.New("2FA is already enabled")
	ErrNotEnabled      = errors.New("2FA is not enabled")
	ErrSetupRequired   = errors.New("2FA setup has not been started")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrCodeAlreadyUsed = errors.New("verification code has already been used")
)

type Service struct {
	config  *config.Config
	db      *gorm.DB
	manager *Manager
	logger  *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, manager *Manager, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing TOTP service",
			zap.Bool("enabled", cfg.TOTP.Enabled),
			zap.String("issuer", cfg.TOTP.Issuer))
	}

	return &Service{
		config:  cfg,
		db:      db,
		manager: manager,
		logger:  logger,
	}
}

func (s *Service) enabled() error {
	if !s.config.TOTP.Enabled || s.manager == nil {
		return ErrTOTPDisabled
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, tx *gorm.DB, userID string) (*auth.User, error) {
	var user auth.User
	if err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// BeginSetup creates a pending secret for the user and returns everything an
// authenticator app needs. Only the encrypted secret is stored; the plain
// secret is returned once.
func (s *Service) BeginSetup(ctx context.Context, userID string) (*Enrollment, error) {
	if err := s.enabled(); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := s.manager.GenerateSecret()
	if err != nil {
		return nil, err
	}

	encrypted, err := s.manager.Encrypt(secret)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&auth.User{}).Where("id = ?", userID).
		Update("totp_secret", encrypted).Error; err != nil {
		return nil, fmt.Errorf("failed to store pending TOTP secret: %w", err)
	}

	uri := s.manager.BuildEnrollmentURI(user.Email, secret)
	qrCode, err := s.manager.RenderQRCode(uri)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("TOTP setup started", zap.String("user_id", userID))
	}

	return &Enrollment{
		Secret:          secret,
		FormattedSecret: FormatSecretForDisplay(secret),
		URI:             uri,
		QRCode:          qrCode,
	}, nil
}

// Enable confirms the pending secret with a code from the authenticator and
// returns a fresh set of plain backup codes.
func (s *Service) Enable(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.enabled(); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return nil, ErrSetupRequired
	}

	secret, err := s.manager.Decrypt(*user.TOTPSecret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to decrypt pending TOTP secret", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, err
	}

	if !s.manager.VerifyCode(code, secret) {
		if s.logger != nil {
			s.logger.Warn("TOTP enable failed - invalid verification code", zap.String("user_id", userID))
		}
		return nil, ErrInvalidCode
	}

	codes, err := s.manager.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes, err := s.manager.HashBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&auth.User{}).Where("id = ?", userID).
			Update("two_factor_enabled", true).Error; err != nil {
			return fmt.Errorf("failed to enable 2FA: %w", err)
		}
		if err := s.replaceBackupCodes(tx, userID, hashes); err != nil {
			return err
		}
		if err := s.purgeUsedCodes(tx); err != nil {
			return err
		}
		return s.markCodeUsed(tx, userID, stripWhitespace(code))
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("TOTP enabled", zap.String("user_id", userID))
	}
	return codes, nil
}

// Disable turns 2FA off after checking a current TOTP or backup code.
func (s *Service) Disable(ctx context.Context, userID, code string) error {
	if err := s.enabled(); err != nil {
		return err
	}

	if err := s.VerifyLogin(ctx, userID, code); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&auth.User{}).Where("id = ?", userID).
			Updates(map[string]any{"two_factor_enabled": false, "totp_secret": nil}).Error; err != nil {
			return fmt.Errorf("failed to disable 2FA: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&UsedCode{}).Error; err != nil {
			return fmt.Errorf("failed to clean up used codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("TOTP disabled", zap.String("user_id", userID))
	}
	return nil
}

// VerifyLogin checks the second factor of a user with 2FA enabled. Six digit
// input is treated as a TOTP code, anything else as a backup code.
func (s *Service) VerifyLogin(ctx context.Context, userID, code string) error {
	if err := s.enabled(); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TOTPSecret == nil {
		return ErrNotEnabled
	}

	cleaned := stripWhitespace(code)
	if cleaned == "" {
		return ErrInvalidCode
	}
	if !sixDigits.MatchString(cleaned) {
		return s.consumeBackupCode(ctx, userID, cleaned)
	}

	secret, err := s.manager.Decrypt(*user.TOTPSecret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to decrypt TOTP secret", zap.String("user_id", userID), zap.Error(err))
		}
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.purgeUsedCodes(tx); err != nil {
			return err
		}
		cutoff := s.manager.now().Add(-replayWindow).Unix()

		var used int64
		if err := tx.Model(&UsedCode{}).
			Where("user_id = ? AND code = ? AND used_at >= ?", userID, cleaned, cutoff).
			Count(&used).Error; err != nil {
			return fmt.Errorf("failed to check used codes: %w", err)
		}
		if used > 0 {
			if s.logger != nil {
				s.logger.Warn("TOTP verification failed - code already used", zap.String("user_id", userID))
			}
			return ErrCodeAlreadyUsed
		}

		if !s.manager.VerifyCode(cleaned, secret) {
			if s.logger != nil {
				s.logger.Warn("TOTP verification failed - invalid code", zap.String("user_id", userID))
			}
			return ErrInvalidCode
		}

		return s.markCodeUsed(tx, userID, cleaned)
	})
}

func (s *Service) consumeBackupCode(ctx context.Context, userID, code string) error {
	var unused []BackupCode
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND used_at IS NULL", userID).
		Order("id").
		Find(&unused).Error; err != nil {
		return fmt.Errorf("failed to load backup codes: %w", err)
	}

	hashes := make([]string, len(unused))
	for i, bc := range unused {
		hashes[i] = bc.CodeHash
	}

	valid, index := s.manager.VerifyBackupCode(code, hashes)
	if !valid {
		if s.logger != nil {
			s.logger.Warn("backup code verification failed", zap.String("user_id", userID))
		}
		return ErrInvalidCode
	}

	result := s.db.WithContext(ctx).Model(&BackupCode{}).
		Where("id = ? AND used_at IS NULL", unused[index].ID).
		Update("used_at", s.manager.now())
	if result.Error != nil {
		return fmt.Errorf("failed to consume backup code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCodeAlreadyUsed
	}

	if s.logger != nil {
		s.logger.Info("backup code used",
			zap.String("user_id", userID),
			zap.Int("remaining", len(unused)-1))
	}
	return nil
}

func (s *Service) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&BackupCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return int(count), nil
}

// RegenerateBackupCodes replaces all backup codes after checking a current
// TOTP or backup code.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.VerifyLogin(ctx, userID, code); err != nil {
		return nil, err
	}

	codes, err := s.manager.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	hashes, err := s.manager.HashBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.replaceBackupCodes(tx, userID, hashes)
	}); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) replaceBackupCodes(tx *gorm.DB, userID string, hashes []string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}

	records := make([]BackupCode, len(hashes))
	for i, hash := range hashes {
		records[i] = BackupCode{UserID: userID, CodeHash: hash}
	}
	if err := tx.Create(&records).Error; err != nil {
		return fmt.Errorf("failed to store backup codes: %w", err)
	}
	return nil
}

func (s *Service) purgeUsedCodes(tx *gorm.DB) error {
	cutoff := s.manager.now().Add(-replayWindow).Unix()
	if err := tx.Where("used_at < ?", cutoff).Delete(&UsedCode{}).Error; err != nil {
		return fmt.Errorf("failed to clean up used codes: %w", err)
	}
	return nil
}

func (s *Service) markCodeUsed(tx *gorm.DB, userID, code string) error {
	if err := tx.Create(&UsedCode{UserID: userID, Code: code, UsedAt: s.manager.now().Unix()}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if s.logger != nil {
				s.logger.Warn("TOTP verification failed - code used concurrently", zap.String("user_id", userID))
			}
			return ErrCodeAlreadyUsed
		}
		return fmt.Errorf("failed to store used code: %w", err)
	}
	return nil
}
