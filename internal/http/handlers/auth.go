package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/auth"
	"github.com/nutriscan/nutriscan/internal/config"
	"github.com/nutriscan/nutriscan/internal/domain/user"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
	"github.com/nutriscan/nutriscan/internal/notifications"
	"github.com/nutriscan/nutriscan/internal/security"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
)

// UserStore is the slice of the users repository the auth flows need. Kept
// as an interface so tests can swap in the memory repo.
type UserStore interface {
	Create(ctx context.Context, u user.User) error
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByVerificationToken(ctx context.Context, token string) (user.User, error)
	GetByResetToken(ctx context.Context, token string) (user.User, error)
	Update(ctx context.Context, u user.User) error
	Delete(ctx context.Context, id string) error
}

type AuthHandler struct {
	users  UserStore
	jwt    *auth.Manager
	mailer notifications.Mailer
	log    *slog.Logger
}

func NewAuthHandler(users UserStore, jwt *auth.Manager, mailer notifications.Mailer, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{users: users, jwt: jwt, mailer: mailer, log: log}
}

type RegisterRequest struct {
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required,min=8"`
	FirstName   string  `json:"firstName" binding:"required,max=100"`
	LastName    string  `json:"lastName" binding:"required,max=100"`
	DateOfBirth *string `json:"dateOfBirth" binding:"omitempty,datetime=2006-01-02"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateProfileRequest struct {
	FirstName   *string `json:"firstName" binding:"omitempty,max=100"`
	LastName    *string `json:"lastName" binding:"omitempty,max=100"`
	DateOfBirth *string `json:"dateOfBirth" binding:"omitempty,datetime=2006-01-02"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if msg := passwordWeakness(req.Password); msg != "" {
		RespondBadRequest(ctx, msg, gin.H{"fields": []FieldError{{Field: "password", Rule: "complexity", Message: msg}}})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u := user.New(req.Email, hash, req.FirstName, req.LastName, req.DateOfBirth)

	token, err := security.NewOpaqueToken()

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	expires := time.Now().UTC().Add(verificationTokenTTL)
	u.VerificationToken = &token
	u.VerificationExpires = &expires

	if err := h.users.Create(cctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "USER_EXISTS", "An account with this email already exists.")
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	h.sendVerification(ctx.Request.Context(), u, token)

	pair, err := h.jwt.IssueTokenPair(u.ID, u.Email, u.EmailVerified)

	if err != nil {
		RespondInternal(ctx, "Could not generate tokens")
		return
	}

	RespondData(ctx, http.StatusCreated, gin.H{
		"user":   u,
		"tokens": pair,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil {
		RespondUnauthorized(ctx, "INVALID_CREDENTIALS", "Email or password is incorrect.")
		return
	}

	if !foundUser.IsActive {
		RespondUnauthorized(ctx, "INVALID_CREDENTIALS", "Email or password is incorrect.")
		return
	}

	if err := security.CheckPassword(foundUser.PasswordHash, req.Password); err != nil {
		RespondUnauthorized(ctx, "INVALID_CREDENTIALS", "Email or password is incorrect.")
		return
	}

	now := time.Now().UTC()
	foundUser.LastLogin = &now

	if err := h.users.Update(cctx, foundUser); err != nil {
		// last-login is cosmetic, the login still succeeds
		h.log.Warn("could not record last login", "err", err, "user_id", foundUser.ID)
	}

	pair, err := h.jwt.IssueTokenPair(foundUser.ID, foundUser.Email, foundUser.EmailVerified)

	if err != nil {
		RespondInternal(ctx, "Could not generate tokens")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{
		"user":   foundUser,
		"tokens": pair,
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)

	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			RespondUnauthorized(ctx, "REFRESH_TOKEN_EXPIRED", "Refresh token expired. Please log in again.")
			return
		}

		RespondUnauthorized(ctx, "INVALID_REFRESH_TOKEN", "Invalid refresh token.")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// the account must still exist and be active; the pair carries the
	// current verification state, not the one baked into the old token
	foundUser, err := h.users.GetByID(cctx, claims.UserID)

	if err != nil || !foundUser.IsActive {
		RespondUnauthorized(ctx, "INVALID_REFRESH_TOKEN", "Invalid refresh token.")
		return
	}

	pair, err := h.jwt.IssueTokenPair(foundUser.ID, foundUser.Email, foundUser.EmailVerified)

	if err != nil {
		RespondInternal(ctx, "Could not generate tokens")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"tokens": pair})
}

// Logout is stateless: tokens are not stored server side, so there is
// nothing to revoke. The endpoint exists so clients have a uniform flow.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	RespondMessage(ctx, http.StatusOK, "Logged out successfully.")
}

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	var req VerifyEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByVerificationToken(cctx, req.Token)

	if err != nil {
		RespondBadRequest(ctx, "Invalid or expired verification token.", nil)
		return
	}

	foundUser.EmailVerified = true
	foundUser.VerificationToken = nil
	foundUser.VerificationExpires = nil

	if err := h.users.Update(cctx, foundUser); err != nil {
		RespondInternal(ctx, "Could not verify email")
		return
	}

	RespondMessage(ctx, http.StatusOK, "Email verified successfully.")
}

func (h *AuthHandler) ResendVerification(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "UNAUTHORIZED", "Authentication required.")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByID(cctx, userID)

	if err != nil {
		RespondNotFound(ctx, "User not found.")
		return
	}

	if foundUser.EmailVerified {
		RespondMessage(ctx, http.StatusOK, "Email is already verified.")
		return
	}

	token, err := security.NewOpaqueToken()

	if err != nil {
		RespondInternal(ctx, "Could not resend verification email")
		return
	}

	expires := time.Now().UTC().Add(verificationTokenTTL)
	foundUser.VerificationToken = &token
	foundUser.VerificationExpires = &expires

	if err := h.users.Update(cctx, foundUser); err != nil {
		RespondInternal(ctx, "Could not resend verification email")
		return
	}

	h.sendVerification(ctx.Request.Context(), foundUser, token)

	RespondMessage(ctx, http.StatusOK, "Verification email sent.")
}

// ForgotPassword always answers the same message so the endpoint cannot be
// used to probe which emails have accounts.
func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)

	if err == nil {
		token, tokenErr := security.NewOpaqueToken()
		expires := time.Now().UTC().Add(resetTokenTTL)
		foundUser.ResetToken = &token
		foundUser.ResetExpires = &expires

		if tokenErr != nil {
			h.log.Error("could not generate reset token", "err", tokenErr)
		} else if err := h.users.Update(cctx, foundUser); err != nil {
			h.log.Error("could not store reset token", "err", err, "user_id", foundUser.ID)
		} else if err := h.mailer.SendPasswordResetEmail(ctx.Request.Context(), notifications.PasswordResetEmailInput{
			Email:     foundUser.Email,
			FirstName: foundUser.FirstName,
			Token:     token,
		}); err != nil {
			h.log.Error("could not send reset email", "err", err, "user_id", foundUser.ID)
		}
	}

	RespondMessage(ctx, http.StatusOK, "If an account with that email exists, a reset link has been sent.")
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if msg := passwordWeakness(req.Password); msg != "" {
		RespondBadRequest(ctx, msg, gin.H{"fields": []FieldError{{Field: "password", Rule: "complexity", Message: msg}}})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByResetToken(cctx, req.Token)

	if err != nil {
		RespondBadRequest(ctx, "Invalid or expired reset token.", nil)
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	foundUser.PasswordHash = hash
	foundUser.ResetToken = nil
	foundUser.ResetExpires = nil

	if err := h.users.Update(cctx, foundUser); err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	RespondMessage(ctx, http.StatusOK, "Password reset successfully.")
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByID(cctx, userID)

	if err != nil {
		RespondNotFound(ctx, "User not found.")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"user": foundUser})
}

func (h *AuthHandler) UpdateMe(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	var req UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByID(cctx, userID)

	if err != nil {
		RespondNotFound(ctx, "User not found.")
		return
	}

	if req.FirstName != nil {
		foundUser.FirstName = *req.FirstName
	}

	if req.LastName != nil {
		foundUser.LastName = *req.LastName
	}

	if req.DateOfBirth != nil {
		foundUser.DateOfBirth = req.DateOfBirth
	}

	if err := h.users.Update(cctx, foundUser); err != nil {
		RespondInternal(ctx, "Could not update profile")
		return
	}

	RespondData(ctx, http.StatusOK, gin.H{"user": foundUser})
}

// DeleteMe removes the account and everything hanging off it; assessments
// and the consent record go with the user row.
func (h *AuthHandler) DeleteMe(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.users.Delete(cctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found.")
			return
		}

		RespondInternal(ctx, "Could not delete account")
		return
	}

	RespondMessage(ctx, http.StatusOK, "Account deleted.")
}

func (h *AuthHandler) sendVerification(ctx context.Context, u user.User, token string) {
	err := h.mailer.SendVerificationEmail(ctx, notifications.VerificationEmailInput{
		Email:     u.Email,
		FirstName: u.FirstName,
		Token:     token,
	})

	if err != nil {
		// delivery is best-effort, registration already succeeded
		h.log.Error("could not send verification email", "err", err, "user_id", u.ID)
	}
}

// passwordWeakness returns a human message when the password misses a
// character class, empty string when it is acceptable. Length is already
// covered by the binding tag.
func passwordWeakness(pw string) string {
	var hasUpper, hasLower, hasDigit bool

	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return "Password must contain an uppercase letter."
	case !hasLower:
		return "Password must contain a lowercase letter."
	case !hasDigit:
		return "Password must contain a number."
	}

	return ""
}
