package refreshtoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/tech-arch1tect/portfolio/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	ledger  *GormLedger
	codec   *jwt.Service
	users   *auth.Service
	service *Service
	user    *auth.User
	logs    *observer.ObservedLogs
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &auth.User{}, &RefreshToken{})

	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.NewFromZap(zap.New(core))

	users := auth.NewService(cfg, db, nil)
	user, err := users.Register(context.Background(), testutils.TestUsers.Email, testutils.TestUsers.Password, nil)
	require.NoError(t, err)

	ledger := NewGormLedger(db, nil)
	codec := jwt.NewService(cfg, nil)

	return &testEnv{
		db:      db,
		ledger:  ledger,
		codec:   codec,
		users:   users,
		service: NewService(cfg, ledger, codec, users, logger),
		user:    user,
		logs:    logs,
	}
}

func (e *testEnv) liveCount(t *testing.T, familyID string) int {
	t.Helper()
	live, err := e.ledger.FindLiveByFamily(context.Background(), e.user.ID, familyID)
	require.NoError(t, err)
	return len(live)
}

var testDevice = NewDevice("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "203.0.113.7")

func TestService_StartFamily(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	pair, err := env.service.StartFamily(ctx, env.user, testDevice)

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Len(t, pair.FamilyID, 36)
	assert.Equal(t, env.user.ID, pair.User.ID)

	accessClaims, err := env.codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, env.user.Email, accessClaims.Email)

	var records []RefreshToken
	require.NoError(t, env.db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, pair.FamilyID, records[0].FamilyID)
	assert.False(t, records[0].IsRevoked)
	assert.NotEqual(t, pair.RefreshToken, records[0].TokenHash)
	assert.Contains(t, records[0].DeviceInfo, "Chrome")
}

func TestService_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("rotation stays in the family", func(t *testing.T) {
		env := setupEnv(t)
		first, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)

		second, err := env.service.Redeem(ctx, first.RefreshToken, testDevice)

		require.NoError(t, err)
		assert.Equal(t, first.FamilyID, second.FamilyID)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
		assert.Equal(t, 1, env.liveCount(t, first.FamilyID))

		third, err := env.service.Redeem(ctx, second.RefreshToken, testDevice)
		require.NoError(t, err)
		assert.Equal(t, first.FamilyID, third.FamilyID)
		assert.Equal(t, 1, env.liveCount(t, first.FamilyID))
	})

	t.Run("reusing a rotated token revokes the family", func(t *testing.T) {
		env := setupEnv(t)
		first, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)
		second, err := env.service.Redeem(ctx, first.RefreshToken, testDevice)
		require.NoError(t, err)

		_, err = env.service.Redeem(ctx, first.RefreshToken, testDevice)
		testutils.AssertErrorType(t, ErrTokenReuseDetected, err)
		assert.Equal(t, 0, env.liveCount(t, first.FamilyID))

		_, err = env.service.Redeem(ctx, second.RefreshToken, testDevice)
		testutils.AssertErrorType(t, ErrTokenReuseDetected, err)

		warnings := env.logs.FilterMessage("refresh token reuse detected, family revoked").All()
		require.NotEmpty(t, warnings)
		assert.Equal(t, first.FamilyID, warnings[0].ContextMap()["family_id"])
	})

	t.Run("reuse does not touch other families", func(t *testing.T) {
		env := setupEnv(t)
		laptop, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)
		phone, err := env.service.StartFamily(ctx, env.user, NewDevice("", "198.51.100.1"))
		require.NoError(t, err)

		_, err = env.service.Redeem(ctx, laptop.RefreshToken, testDevice)
		require.NoError(t, err)
		_, err = env.service.Redeem(ctx, laptop.RefreshToken, testDevice)
		testutils.AssertErrorType(t, ErrTokenReuseDetected, err)

		assert.Equal(t, 0, env.liveCount(t, laptop.FamilyID))
		assert.Equal(t, 1, env.liveCount(t, phone.FamilyID))

		_, err = env.service.Redeem(ctx, phone.RefreshToken, testDevice)
		assert.NoError(t, err)
	})

	t.Run("invalid token changes nothing", func(t *testing.T) {
		env := setupEnv(t)
		pair, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)

		_, err = env.service.Redeem(ctx, "garbage", testDevice)
		testutils.AssertErrorType(t, ErrInvalidToken, err)

		_, err = env.service.Redeem(ctx, pair.AccessToken, testDevice)
		testutils.AssertErrorType(t, ErrInvalidToken, err)

		assert.Equal(t, 1, env.liveCount(t, pair.FamilyID))
	})

	t.Run("token of an unknown family is reuse", func(t *testing.T) {
		env := setupEnv(t)

		issued, err := env.codec.IssueRefresh(env.user.ID, "")
		require.NoError(t, err)

		_, err = env.service.Redeem(ctx, issued.Token, testDevice)
		testutils.AssertErrorType(t, ErrTokenReuseDetected, err)
	})

	t.Run("logout then redeem is reuse", func(t *testing.T) {
		env := setupEnv(t)
		pair, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)

		require.NoError(t, env.service.Logout(ctx, env.user.ID))

		_, err = env.service.Redeem(ctx, pair.RefreshToken, testDevice)
		testutils.AssertErrorType(t, ErrTokenReuseDetected, err)
	})

	t.Run("deleted user", func(t *testing.T) {
		env := setupEnv(t)
		pair, err := env.service.StartFamily(ctx, env.user, testDevice)
		require.NoError(t, err)
		require.NoError(t, env.db.Delete(&auth.User{}, "id = ?", env.user.ID).Error)

		_, err = env.service.Redeem(ctx, pair.RefreshToken, testDevice)

		testutils.AssertErrorType(t, ErrInvalidToken, err)
		assert.Equal(t, 0, env.liveCount(t, pair.FamilyID))
	})
}

func TestService_Redeem_Concurrent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	pair, err := env.service.StartFamily(ctx, env.user, testDevice)
	require.NoError(t, err)

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		reuses    int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Redeem(ctx, pair.RefreshToken, testDevice)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrTokenReuseDetected):
				reuses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, reuses)
	assert.Equal(t, 0, env.liveCount(t, pair.FamilyID))
}

func TestService_RevokeFamily(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	pair, err := env.service.StartFamily(ctx, env.user, testDevice)
	require.NoError(t, err)

	require.NoError(t, env.service.RevokeFamily(ctx, pair.FamilyID))
	assert.Equal(t, 0, env.liveCount(t, pair.FamilyID))
}

type failingLedger struct {
	Ledger
}

func (failingLedger) FindLiveByFamily(ctx context.Context, userID, familyID string) ([]RefreshToken, error) {
	return nil, errors.New("connection refused")
}

func (failingLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestService_LedgerFailure(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	pair, err := env.service.StartFamily(ctx, env.user, testDevice)
	require.NoError(t, err)

	service := NewService(testutils.GetTestConfig(), failingLedger{Ledger: env.ledger}, env.codec, env.users, nil)

	_, err = service.Redeem(ctx, pair.RefreshToken, testDevice)
	testutils.AssertErrorType(t, ErrLedger, err)
	assert.NotContains(t, err.Error(), "connection refused")

	err = service.Logout(ctx, env.user.ID)
	testutils.AssertErrorType(t, ErrLedger, err)

	assert.Equal(t, 1, env.liveCount(t, pair.FamilyID))
}

// revokeFailsFor fails Revoke for a single record and delegates the rest.
type revokeFailsFor struct {
	*GormLedger
	id uint
}

func (l revokeFailsFor) Revoke(ctx context.Context, id uint) (bool, error) {
	if id == l.id {
		return false, errors.New("db down")
	}
	return l.GormLedger.Revoke(ctx, id)
}

// revokeFamilyFails fails every family revocation.
type revokeFamilyFails struct {
	*GormLedger
}

func (revokeFamilyFails) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	return 0, errors.New("db down")
}

func TestService_Redeem_RevokeFailureKeepsOneLiveToken(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	pair, err := env.service.StartFamily(ctx, env.user, testDevice)
	require.NoError(t, err)

	live, err := env.ledger.FindLiveByFamily(ctx, env.user.ID, pair.FamilyID)
	require.NoError(t, err)
	require.Len(t, live, 1)

	service := NewService(testutils.GetTestConfig(), revokeFailsFor{GormLedger: env.ledger, id: live[0].ID}, env.codec, env.users, nil)

	for i := 0; i < 2; i++ {
		_, err = service.Redeem(ctx, pair.RefreshToken, testDevice)
		testutils.AssertErrorType(t, ErrLedger, err)
		assert.Equal(t, 1, env.liveCount(t, pair.FamilyID))
	}

	// the client still holds the presented token and can rotate once the store recovers
	next, err := env.service.Redeem(ctx, pair.RefreshToken, testDevice)
	require.NoError(t, err)
	assert.Equal(t, pair.FamilyID, next.FamilyID)
	assert.Equal(t, 1, env.liveCount(t, pair.FamilyID))
}

func TestService_ReuseWithFailedFamilyRevocation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first, err := env.service.StartFamily(ctx, env.user, testDevice)
	require.NoError(t, err)
	_, err = env.service.Redeem(ctx, first.RefreshToken, testDevice)
	require.NoError(t, err)

	service := NewService(testutils.GetTestConfig(), revokeFamilyFails{GormLedger: env.ledger}, env.codec, env.users, env.service.logger)

	_, err = service.Redeem(ctx, first.RefreshToken, testDevice)
	testutils.AssertErrorType(t, ErrTokenReuseDetected, err)

	failures := env.logs.FilterMessage("refresh token reuse detected, family revocation failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Equal(t, first.FamilyID, failures[0].ContextMap()["family_id"])
	assert.Empty(t, env.logs.FilterMessage("refresh token reuse detected, family revoked").All())
}

func TestService_CleanupExpired(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Insert(ctx, env.user.ID, "expired", "family-old", time.Now().Add(-time.Hour), "")
	require.NoError(t, err)
	_, err = env.ledger.Insert(ctx, env.user.ID, "current", "family-new", time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	require.NoError(t, env.service.CleanupExpired(ctx))

	var count int64
	require.NoError(t, env.db.Model(&RefreshToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestService_CleanupWorker(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Insert(ctx, env.user.ID, "expired", "family-old", time.Now().Add(-time.Hour), "")
	require.NoError(t, err)

	env.service.interval = 10 * time.Millisecond
	env.service.StartCleanupWorker()

	assert.Eventually(t, func() bool {
		var count int64
		env.db.Model(&RefreshToken{}).Count(&count)
		return count == 0
	}, 2*time.Second, 10*time.Millisecond)

	env.service.StopCleanupWorker()
	env.service.StopCleanupWorker()
}

func TestService_CleanupWorkerDisabled(t *testing.T) {
	env := setupEnv(t)
	env.service.interval = 0

	env.service.StartCleanupWorker()

	assert.Nil(t, env.service.stop)
	assert.NotPanics(t, env.service.StopCleanupWorker)
}
