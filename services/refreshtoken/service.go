package refreshtoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = jwt.ErrInvalidToken
	ErrTokenReuseDetected = errors.New("token reuse detected")
	ErrLedger             = errors.New("refresh token ledger unavailable")
)

type TokenCodec interface {
	IssueAccess(userID, email string) (string, error)
	IssueRefresh(userID, familyID string) (*jwt.IssuedRefresh, error)
	VerifyRefresh(token string) (*jwt.RefreshClaims, error)
	AccessExpiry() time.Duration
}

type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*auth.User, error)
}

// Service issues refresh tokens in families and rotates them on every use.
// Presenting a token that is no longer the live one for its family revokes
// the whole family.
type Service struct {
	ledger     Ledger
	codec      TokenCodec
	users      UserLookup
	logger     *logging.Service
	bcryptCost int
	interval   time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewService(cfg *config.Config, ledger Ledger, codec TokenCodec, users UserLookup, logger *logging.Service) *Service {
	cost := cfg.Auth.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	if logger != nil {
		logger.Info("initializing refresh token service",
			zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
			zap.Duration("cleanup_interval", cfg.JWT.CleanupInterval))
	}

	return &Service{
		ledger:     ledger,
		codec:      codec,
		users:      users,
		logger:     logger,
		bcryptCost: cost,
		interval:   cfg.JWT.CleanupInterval,
		now:        time.Now,
	}
}

// StartFamily issues the first token pair of a new family after a
// successful login.
func (s *Service) StartFamily(ctx context.Context, user *auth.User, device Device) (*TokenPair, error) {
	pair, _, err := s.issuePair(ctx, user, "", device)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("refresh token family started",
			zap.String("user_id", user.ID),
			zap.String("family_id", pair.FamilyID),
			zap.String("device", device.Label()))
	}
	return pair, nil
}

// Redeem exchanges a refresh token for a new pair in the same family.
func (s *Service) Redeem(ctx context.Context, token string, device Device) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(token)
	if err != nil {
		return nil, err
	}

	live, err := s.ledger.FindLiveByFamily(ctx, claims.UserID, claims.FamilyID)
	if err != nil {
		return nil, s.ledgerError("failed to load refresh token family", err)
	}

	if len(live) == 0 {
		return nil, s.reuseDetected(ctx, claims, "no live token in family")
	}

	digest := tokenDigest(token)
	var matched *RefreshToken
	for i := range live {
		if bcrypt.CompareHashAndPassword([]byte(live[i].TokenHash), digest) == nil {
			matched = &live[i]
			break
		}
	}

	if matched == nil {
		return nil, s.reuseDetected(ctx, claims, "token does not match the live token")
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			if _, revokeErr := s.ledger.RevokeFamily(ctx, claims.FamilyID); revokeErr != nil && s.logger != nil {
				s.logger.Error("failed to revoke family of deleted user", zap.Error(revokeErr))
			}
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// The successor is stored before the presented token is revoked, so a
	// family revocation racing with this call always covers the successor.
	pair, successor, err := s.issuePair(ctx, user, claims.FamilyID, device)
	if err != nil {
		return nil, err
	}

	revoked, err := s.ledger.Revoke(ctx, matched.ID)
	if err != nil {
		s.discard(ctx, successor)
		return nil, s.ledgerError("failed to revoke redeemed refresh token", err)
	}
	if !revoked {
		return nil, s.reuseDetected(ctx, claims, "token redeemed concurrently")
	}

	if s.logger != nil {
		s.logger.Debug("refresh token rotated",
			zap.String("user_id", user.ID),
			zap.String("family_id", claims.FamilyID),
			zap.Uint("old_token_id", matched.ID))
	}
	return pair, nil
}

// Logout revokes every refresh token the user holds, across all families.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if _, err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return s.ledgerError("failed to revoke user refresh tokens", err)
	}
	return nil
}

// RevokeFamily ends a single device session.
func (s *Service) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := s.ledger.RevokeFamily(ctx, familyID); err != nil {
		return s.ledgerError("failed to revoke refresh token family", err)
	}
	return nil
}

func (s *Service) issuePair(ctx context.Context, user *auth.User, familyID string, device Device) (*TokenPair, *RefreshToken, error) {
	accessToken, err := s.codec.IssueAccess(user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}

	issued, err := s.codec.IssueRefresh(user.ID, familyID)
	if err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword(tokenDigest(issued.Token), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash refresh token: %w", err)
	}

	record, err := s.ledger.Insert(ctx, user.ID, string(hash), issued.FamilyID, issued.ExpiresAt, device.encode())
	if err != nil {
		return nil, nil, s.ledgerError("failed to store refresh token", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     issued.Token,
		FamilyID:         issued.FamilyID,
		AccessExpiresAt:  s.now().Add(s.codec.AccessExpiry()),
		RefreshExpiresAt: issued.ExpiresAt,
		User:             user,
	}, record, nil
}

// discard revokes a successor whose token never reached the client, so a
// failed rotation leaves only the presented token live.
func (s *Service) discard(ctx context.Context, successor *RefreshToken) {
	if successor == nil {
		return
	}
	if _, err := s.ledger.Revoke(ctx, successor.ID); err != nil && s.logger != nil {
		s.logger.Error("failed to revoke unissued refresh token",
			zap.String("family_id", successor.FamilyID),
			zap.Uint("token_id", successor.ID),
			zap.Error(err))
	}
}

func (s *Service) reuseDetected(ctx context.Context, claims *jwt.RefreshClaims, reason string) error {
	count, err := s.ledger.RevokeFamily(ctx, claims.FamilyID)

	if s.logger != nil {
		fields := []zap.Field{
			zap.String("user_id", claims.UserID),
			zap.String("family_id", claims.FamilyID),
			zap.String("reason", reason),
		}
		if err != nil {
			s.logger.Error("refresh token reuse detected, family revocation failed",
				append(fields, zap.Error(err))...)
		} else {
			s.logger.Warn("refresh token reuse detected, family revoked",
				append(fields, zap.Int64("revoked", count))...)
		}
	}

	return ErrTokenReuseDetected
}

func (s *Service) ledgerError(msg string, err error) error {
	if s.logger != nil {
		s.logger.Error(msg, zap.Error(err))
	}
	return fmt.Errorf("%w: %s", ErrLedger, msg)
}

// CleanupExpired deletes records whose expiry has passed.
func (s *Service) CleanupExpired(ctx context.Context) error {
	count, err := s.ledger.DeleteExpired(ctx, s.now())
	if err != nil {
		return s.ledgerError("failed to clean up expired refresh tokens", err)
	}

	if s.logger != nil && count > 0 {
		s.logger.Info("cleaned up expired refresh tokens", zap.Int64("count", count))
	}
	return nil
}

// StartCleanupWorker runs CleanupExpired on the configured interval until
// StopCleanupWorker is called. A zero interval disables the worker.
func (s *Service) StartCleanupWorker() {
	if s.interval <= 0 || s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.CleanupExpired(context.Background()); err != nil && s.logger != nil {
					s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
				}
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker", zap.Duration("interval", s.interval))
	}
}

func (s *Service) StopCleanupWorker() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

// tokenDigest keeps the bcrypt input under its 72 byte limit. Signed JWTs
// share a long common prefix, so hashing them directly would collide.
func tokenDigest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(sum[:]))
}
