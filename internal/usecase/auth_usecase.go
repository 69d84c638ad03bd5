package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

// refreshtokenの有効期限。cookieの期限もこれに合わせる
const RefreshTokenTTL = 30 * 24 * time.Hour

type AuthUsecase struct {
	users  repo.UserRepository
	tokens repo.RefreshTokenRepository
	cfg    config.Config
}

func NewAuthUsecase(users repo.UserRepository, tokens repo.RefreshTokenRepository, cfg config.Config) *AuthUsecase {
	return &AuthUsecase{users: users, tokens: tokens, cfg: cfg}
}

type RegisterInput struct {
	Email    string
	Password string
}

type UserOutput struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	PayoutAccount string `json:"payout_account,omitempty"`
	TokenVersion  int    `json:"token_version"`
	IsActive      bool   `json:"is_active"`
}

type LoginOutput struct {
	User        UserOutput `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`

	//cookieに入れる。bodyには出さない
	RefreshTokenPlain string `json:"-"`
}

// 会員登録。パスワードはbcryptでハッシュ化して保存する。
func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (UserOutput, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return UserOutput{}, NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	// 最小12文字
	if len(in.Password) < 12 {
		return UserOutput{}, NewHTTPError(http.StatusBadRequest, "password too short")
	}

	existing, err := u.users.FindByEmail(ctx, email)
	if err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if existing != nil {
		return UserOutput{}, NewHTTPError(http.StatusConflict, "email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), 12)
	if err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "hash error")
	}

	now := time.Now()
	user := &model.User{
		Email:        email,
		PasswordHash: string(hashed),
		Role:         model.RoleUser, // 初期はUSER
		TokenVersion: 0,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.users.Create(ctx, user); err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toUserOutput(user), nil
}

type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (LoginOutput, error) {
	user, err := u.users.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	//存在しない場合も同じ401にする（emailの存在を漏らさない）
	if user == nil || !user.IsActive {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "token error")
	}

	refreshPlain, refreshHash, err := newRandomTokenAndHash()
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "token error")
	}

	rt := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		UserAgent: in.UserAgent,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}
	if err := u.tokens.Create(ctx, rt); err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := time.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	return LoginOutput{
		User:              toUserOutput(user),
		AccessToken:       accessToken,
		ExpiresIn:         expiresIn,
		RefreshTokenPlain: refreshPlain,
	}, nil
}

// refreshトークンの回転。使用済みが再び来たらそのユーザーの全トークンを捨てる。
func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain string, userAgent string) (LoginOutput, error) {
	if strings.TrimSpace(refreshTokenPlain) == "" {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	rt, err := u.tokens.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil || rt == nil {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//期限切れ
	if rt.ExpiresAt.Before(time.Now()) {
		_ = u.tokens.DeleteByID(ctx, rt.ID)
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//used済みが来たら replay → 全削除
	if rt.UsedAt != nil {
		_ = u.tokens.DeleteAllByUserID(ctx, rt.UserID)
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil || user == nil || !user.IsActive {
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//旧tokenをusedにする
	if err := u.tokens.MarkUsed(ctx, rt.ID, time.Now()); err != nil {
		_ = u.tokens.DeleteAllByUserID(ctx, rt.UserID)
		return LoginOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "token error")
	}

	newPlain, newHash, err := newRandomTokenAndHash()
	if err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "token error")
	}

	newRT := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: newHash,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}
	if err := u.tokens.Create(ctx, newRT); err != nil {
		return LoginOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return LoginOutput{
		User:              toUserOutput(user),
		AccessToken:       accessToken,
		ExpiresIn:         expiresIn,
		RefreshTokenPlain: newPlain,
	}, nil
}

// 出品者が送金先口座を登録する。リリースはこれが無いと成立しない。
func (u *AuthUsecase) SetPayoutAccount(ctx context.Context, userID int64, payoutAccount string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	account := strings.TrimSpace(payoutAccount)
	if account == "" || len(account) > 255 {
		return NewHTTPError(http.StatusBadRequest, "invalid payout_account")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err == repo.ErrUserNotFound || (err == nil && user == nil) {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	user.PayoutAccount = account
	user.UpdatedAt = time.Now()
	if err := u.users.Update(ctx, user); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 管理者がユーザーを強制ログアウトさせる（token_versionを+1）。
func (u *AuthUsecase) ForceLogout(ctx context.Context, adminID int64, targetUserID int64) error {
	if adminID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if targetUserID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	if err := u.users.IncrementTokenVersion(ctx, targetUserID); err != nil {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	_ = u.tokens.DeleteAllByUserID(ctx, targetUserID)
	return nil
}

func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(accessTokenTTL)

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int64(accessTokenTTL.Seconds()), nil
}

func toUserOutput(user *model.User) UserOutput {
	return UserOutput{
		ID:            user.ID,
		Email:         user.Email,
		Role:          string(user.Role),
		PayoutAccount: user.PayoutAccount,
		TokenVersion:  user.TokenVersion,
		IsActive:      user.IsActive,
	}
}

// refreshトークンの平文とハッシュを作る。DBにはハッシュだけ入れる
func newRandomTokenAndHash() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
