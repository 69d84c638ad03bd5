package unit

import (
	"context"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture() (*UserRepoMock, *RefreshTokenRepoMock, *usecase.AuthUsecase) {
	usersRepo := new(UserRepoMock)
	tokensRepo := new(RefreshTokenRepoMock)

	cfg := config.Config{JWTSecret: "test-secret"}
	uc := usecase.NewAuthUsecase(usersRepo, tokensRepo, cfg)
	return usersRepo, tokensRepo, uc
}

// テスト用。コストは最小にする（本番は12）
func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func TestAuthUsecase_Register_InvalidEmail(t *testing.T) {
	_, _, uc := newAuthFixture()

	_, err := uc.Register(context.Background(), usecase.RegisterInput{
		Email:    "not-an-email",
		Password: "long-enough-password",
	})
	assertErrContains(t, err, "invalid email")
}

func TestAuthUsecase_Register_PasswordTooShort(t *testing.T) {
	_, _, uc := newAuthFixture()

	_, err := uc.Register(context.Background(), usecase.RegisterInput{
		Email:    "a@example.com",
		Password: "short",
	})
	assertErrContains(t, err, "password too short")
}

func TestAuthUsecase_Register_DuplicateEmail(t *testing.T) {
	usersRepo, _, uc := newAuthFixture()

	usersRepo.On("FindByEmail", mock.Anything, "a@example.com").Return(&model.User{ID: 1}, nil)

	_, err := uc.Register(context.Background(), usecase.RegisterInput{
		Email:    "a@example.com",
		Password: "long-enough-password",
	})
	assertErrContains(t, err, "email already exists")

	usersRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthUsecase_Login_WrongPassword_Unauthorized(t *testing.T) {
	usersRepo, tokensRepo, uc := newAuthFixture()

	usersRepo.On("FindByEmail", mock.Anything, "a@example.com").Return(&model.User{
		ID:           1,
		Email:        "a@example.com",
		PasswordHash: hashPassword(t, "correct-password-123"),
		IsActive:     true,
	}, nil)

	_, err := uc.Login(context.Background(), usecase.LoginInput{
		Email:    "a@example.com",
		Password: "wrong-password",
	})
	assertErrContains(t, err, "unauthorized")

	// 失敗時はrefresh tokenを発行しない
	tokensRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// 存在しないemailも同じ401（emailの存在を漏らさない）
func TestAuthUsecase_Login_UnknownEmail_SameError(t *testing.T) {
	usersRepo, _, uc := newAuthFixture()

	usersRepo.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)

	_, err := uc.Login(context.Background(), usecase.LoginInput{
		Email:    "nobody@example.com",
		Password: "whatever-password",
	})
	assertErrContains(t, err, "unauthorized")
}

func TestAuthUsecase_Login_Success_IssuesTokens(t *testing.T) {
	usersRepo, tokensRepo, uc := newAuthFixture()

	user := &model.User{
		ID:           1,
		Email:        "a@example.com",
		PasswordHash: hashPassword(t, "correct-password-123"),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	usersRepo.On("FindByEmail", mock.Anything, "a@example.com").Return(user, nil)
	tokensRepo.On("Create", mock.Anything, mock.MatchedBy(func(rt *model.RefreshToken) bool {
		// DBには平文でなくハッシュが入る
		return rt.UserID == 1 && rt.TokenHash != "" && rt.ExpiresAt.After(time.Now())
	})).Return(nil)
	usersRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	out, err := uc.Login(context.Background(), usecase.LoginInput{
		Email:    "a@example.com",
		Password: "correct-password-123",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshTokenPlain)
	assert.NotEqual(t, out.RefreshTokenPlain, "")
	assert.Equal(t, int64(1), out.User.ID)

	tokensRepo.AssertExpectations(t)
}

// 使用済みrefresh tokenの再利用はreplay扱い。全トークンを捨てる
func TestAuthUsecase_Refresh_ReplayedToken_DeletesAll(t *testing.T) {
	_, tokensRepo, uc := newAuthFixture()

	usedAt := time.Now().Add(-time.Hour)
	tokensRepo.On("FindByTokenHash", mock.Anything, mock.Anything).Return(&model.RefreshToken{
		ID:        "tok-1",
		UserID:    1,
		UsedAt:    &usedAt,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	tokensRepo.On("DeleteAllByUserID", mock.Anything, int64(1)).Return(nil)

	_, err := uc.Refresh(context.Background(), "replayed-token", "ua")
	assertErrContains(t, err, "unauthorized")

	tokensRepo.AssertExpectations(t)
}

func TestAuthUsecase_Refresh_ExpiredToken(t *testing.T) {
	_, tokensRepo, uc := newAuthFixture()

	tokensRepo.On("FindByTokenHash", mock.Anything, mock.Anything).Return(&model.RefreshToken{
		ID:        "tok-2",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}, nil)
	tokensRepo.On("DeleteByID", mock.Anything, "tok-2").Return(nil)

	_, err := uc.Refresh(context.Background(), "expired-token", "ua")
	assertErrContains(t, err, "unauthorized")
}

func TestAuthUsecase_ForceLogout_BumpsTokenVersion(t *testing.T) {
	usersRepo, tokensRepo, uc := newAuthFixture()

	usersRepo.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(nil)
	tokensRepo.On("DeleteAllByUserID", mock.Anything, int64(5)).Return(nil)

	err := uc.ForceLogout(context.Background(), 1, 5)
	assert.NoError(t, err)

	usersRepo.AssertExpectations(t)
	tokensRepo.AssertExpectations(t)
}

func TestAuthUsecase_SetPayoutAccount_Success(t *testing.T) {
	usersRepo, _, uc := newAuthFixture()

	usersRepo.On("FindByID", mock.Anything, int64(7)).Return(&model.User{ID: 7, IsActive: true}, nil)
	usersRepo.On("Update", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.PayoutAccount == "acct_123"
	})).Return(nil)

	err := uc.SetPayoutAccount(context.Background(), 7, "  acct_123  ")
	assert.NoError(t, err)

	usersRepo.AssertExpectations(t)
}

func TestAuthUsecase_SetPayoutAccount_Empty(t *testing.T) {
	_, _, uc := newAuthFixture()

	err := uc.SetPayoutAccount(context.Background(), 7, "   ")
	assertErrContains(t, err, "invalid payout_account")
}
