package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/auth"
	"github.com/nutriscan/nutriscan/internal/http/handlers"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
	"github.com/nutriscan/nutriscan/internal/notifications"
	"github.com/nutriscan/nutriscan/internal/repo/memory"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMailer struct {
	mu            sync.Mutex
	verifications []notifications.VerificationEmailInput
	resets        []notifications.PasswordResetEmailInput
}

func (f *fakeMailer) SendVerificationEmail(_ context.Context, in notifications.VerificationEmailInput) error {
	f.mu.Lock()
	f.verifications = append(f.verifications, in)
	f.mu.Unlock()

	return nil
}

func (f *fakeMailer) SendPasswordResetEmail(_ context.Context, in notifications.PasswordResetEmailInput) error {
	f.mu.Lock()
	f.resets = append(f.resets, in)
	f.mu.Unlock()

	return nil
}

func testJWT() *auth.Manager {
	return auth.NewManager("test-secret", "nutriscan-api", "nutriscan-app", time.Hour, 24*time.Hour)
}

type authFixture struct {
	users  *memory.UsersRepo
	mailer *fakeMailer
	jwt    *auth.Manager
	h      *handlers.AuthHandler
	authMw *middlewares.AuthMiddleware
}

func newAuthFixture() *authFixture {
	users := memory.NewUsersRepo()
	mailer := &fakeMailer{}
	jwt := testJWT()

	return &authFixture{
		users:  users,
		mailer: mailer,
		jwt:    jwt,
		h:      handlers.NewAuthHandler(users, jwt, mailer, nil),
		authMw: middlewares.NewAuthMiddleware(jwt),
	}
}

func postJSON(r *gin.Engine, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

const registerBody = `{
	"email": "jane@example.com",
	"password": "Str0ngPass",
	"firstName": "Jane",
	"lastName": "Doe",
	"dateOfBirth": "1990-04-01"
}`

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		prepare        func(f *authFixture, r *gin.Engine)
		wantStatusCode int
		wantErrCode    string
	}{
		{
			name:           "success",
			body:           registerBody,
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "duplicate_email",
			body: registerBody,
			prepare: func(f *authFixture, r *gin.Engine) {
				postJSON(r, "/auth/register", registerBody, "")
			},
			wantStatusCode: http.StatusConflict,
			wantErrCode:    "USER_EXISTS",
		},
		{
			name:           "weak_password_no_digit",
			body:           `{"email":"a@b.com","password":"NoDigitsHere","firstName":"A","lastName":"B"}`,
			wantStatusCode: http.StatusBadRequest,
			wantErrCode:    "VALIDATION_ERROR",
		},
		{
			name:           "invalid_email",
			body:           `{"email":"not-an-email","password":"Str0ngPass","firstName":"A","lastName":"B"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "bad_date_of_birth",
			body:           `{"email":"a@b.com","password":"Str0ngPass","firstName":"A","lastName":"B","dateOfBirth":"01/04/1990"}`,
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()

			r := gin.New()
			r.POST("/auth/register", f.h.Register)

			if tt.prepare != nil {
				tt.prepare(f, r)
			}

			w := postJSON(r, "/auth/register", tt.body, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantErrCode != "" {
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}

				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}

				if resp.Error.Code != tt.wantErrCode {
					t.Fatalf("error code = %q, want %q", resp.Error.Code, tt.wantErrCode)
				}
			}
		})
	}
}

func TestRegisterIssuesTokensAndSendsVerification(t *testing.T) {
	f := newAuthFixture()

	r := gin.New()
	r.POST("/auth/register", f.h.Register)

	w := postJSON(r, "/auth/register", registerBody, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Tokens auth.TokenPair `json:"tokens"`
			User   struct {
				Email         string `json:"email"`
				EmailVerified bool   `json:"emailVerified"`
			} `json:"user"`
		} `json:"data"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Data.Tokens.AccessToken == "" || resp.Data.Tokens.RefreshToken == "" {
		t.Fatalf("missing tokens in response: %s", w.Body.String())
	}

	if resp.Data.Tokens.TokenType != "Bearer" {
		t.Fatalf("tokenType = %q", resp.Data.Tokens.TokenType)
	}

	if resp.Data.User.EmailVerified {
		t.Fatalf("new user should start unverified")
	}

	if len(f.mailer.verifications) != 1 {
		t.Fatalf("verification emails sent = %d, want 1", len(f.mailer.verifications))
	}

	if f.mailer.verifications[0].Email != "jane@example.com" {
		t.Fatalf("verification email went to %q", f.mailer.verifications[0].Email)
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantStatusCode int
	}{
		{
			name:           "success",
			body:           `{"email":"jane@example.com","password":"Str0ngPass"}`,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "email_is_case_insensitive",
			body:           `{"email":"JANE@Example.com","password":"Str0ngPass"}`,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "wrong_password",
			body:           `{"email":"jane@example.com","password":"WrongPass1"}`,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "unknown_email",
			body:           `{"email":"nobody@example.com","password":"Str0ngPass"}`,
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()

			r := gin.New()
			r.POST("/auth/register", f.h.Register)
			r.POST("/auth/login", f.h.Login)

			if w := postJSON(r, "/auth/register", registerBody, ""); w.Code != http.StatusCreated {
				t.Fatalf("register setup failed: %d", w.Code)
			}

			w := postJSON(r, "/auth/login", tt.body, "")

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestRefreshHandler(t *testing.T) {
	f := newAuthFixture()

	r := gin.New()
	r.POST("/auth/register", f.h.Register)
	r.POST("/auth/refresh", f.h.Refresh)

	w := postJSON(r, "/auth/register", registerBody, "")

	var reg struct {
		Data struct {
			Tokens auth.TokenPair `json:"tokens"`
		} `json:"data"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	t.Run("valid_refresh", func(t *testing.T) {
		body := `{"refreshToken":"` + reg.Data.Tokens.RefreshToken + `"}`
		w := postJSON(r, "/auth/refresh", body, "")

		if w.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("access_token_rejected_as_refresh", func(t *testing.T) {
		body := `{"refreshToken":"` + reg.Data.Tokens.AccessToken + `"}`
		w := postJSON(r, "/auth/refresh", body, "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("expired_refresh_has_distinct_code", func(t *testing.T) {
		// a manager whose refresh tokens are already expired
		expiredMgr := auth.NewManager("test-secret", "nutriscan-api", "nutriscan-app", time.Hour, -time.Minute)
		expired, err := expiredMgr.GenerateRefreshToken("some-id", "jane@example.com", false)

		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		w := postJSON(r, "/auth/refresh", `{"refreshToken":"`+expired+`"}`, "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}

		var resp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if resp.Error.Code != "REFRESH_TOKEN_EXPIRED" {
			t.Fatalf("error code = %q, want REFRESH_TOKEN_EXPIRED", resp.Error.Code)
		}
	})
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newAuthFixture()

	r := gin.New()
	r.POST("/auth/register", f.h.Register)
	r.POST("/auth/verify-email", f.h.VerifyEmail)

	if w := postJSON(r, "/auth/register", registerBody, ""); w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}

	if len(f.mailer.verifications) != 1 {
		t.Fatalf("no verification email captured")
	}

	token := f.mailer.verifications[0].Token

	w := postJSON(r, "/auth/verify-email", `{"token":"`+token+`"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("verify: %d body=%s", w.Code, w.Body.String())
	}

	u, err := f.users.GetByEmail(context.Background(), "jane@example.com")

	if err != nil {
		t.Fatalf("load user: %v", err)
	}

	if !u.EmailVerified {
		t.Fatalf("user not marked verified")
	}

	if u.VerificationToken != nil {
		t.Fatalf("verification token not cleared after use")
	}

	// the token is single-use
	w = postJSON(r, "/auth/verify-email", `{"token":"`+token+`"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("reused token: got %d, want 400", w.Code)
	}
}

func TestForgotAndResetPasswordFlow(t *testing.T) {
	f := newAuthFixture()

	r := gin.New()
	r.POST("/auth/register", f.h.Register)
	r.POST("/auth/login", f.h.Login)
	r.POST("/auth/forgot-password", f.h.ForgotPassword)
	r.POST("/auth/reset-password", f.h.ResetPassword)

	if w := postJSON(r, "/auth/register", registerBody, ""); w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}

	// unknown email answers exactly like a known one
	w := postJSON(r, "/auth/forgot-password", `{"email":"nobody@example.com"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("forgot (unknown): %d", w.Code)
	}

	if len(f.mailer.resets) != 0 {
		t.Fatalf("reset email sent for unknown address")
	}

	w = postJSON(r, "/auth/forgot-password", `{"email":"jane@example.com"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("forgot: %d", w.Code)
	}

	if len(f.mailer.resets) != 1 {
		t.Fatalf("reset emails sent = %d, want 1", len(f.mailer.resets))
	}

	token := f.mailer.resets[0].Token

	// weak replacement password is rejected
	w = postJSON(r, "/auth/reset-password", `{"token":"`+token+`","password":"alllowercase1"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("weak reset password: got %d, want 400", w.Code)
	}

	w = postJSON(r, "/auth/reset-password", `{"token":"`+token+`","password":"NewStr0ngPass"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d body=%s", w.Code, w.Body.String())
	}

	// old password no longer works, new one does
	if w := postJSON(r, "/auth/login", `{"email":"jane@example.com","password":"Str0ngPass"}`, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: %d", w.Code)
	}

	if w := postJSON(r, "/auth/login", `{"email":"jane@example.com","password":"NewStr0ngPass"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("new password rejected: %d body=%s", w.Code, w.Body.String())
	}
}

func TestMeEndpoints(t *testing.T) {
	f := newAuthFixture()

	r := gin.New()
	r.POST("/auth/register", f.h.Register)

	me := r.Group("/auth/me", f.authMw.RequireAuth())
	me.GET("", f.h.Me)
	me.PUT("", f.h.UpdateMe)
	me.DELETE("", f.h.DeleteMe)

	w := postJSON(r, "/auth/register", registerBody, "")

	var reg struct {
		Data struct {
			Tokens auth.TokenPair `json:"tokens"`
		} `json:"data"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	access := reg.Data.Tokens.AccessToken

	t.Run("requires_auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", w.Code)
		}
	})

	t.Run("get_me", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			Data struct {
				User struct {
					Email     string `json:"email"`
					FirstName string `json:"firstName"`
				} `json:"user"`
			} `json:"data"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if resp.Data.User.Email != "jane@example.com" || resp.Data.User.FirstName != "Jane" {
			t.Fatalf("unexpected profile: %s", w.Body.String())
		}
	})

	t.Run("update_me", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/auth/me", bytes.NewBufferString(`{"firstName":"Janet"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		u, err := f.users.GetByEmail(context.Background(), "jane@example.com")

		if err != nil {
			t.Fatalf("load user: %v", err)
		}

		if u.FirstName != "Janet" {
			t.Fatalf("firstName = %q, want Janet", u.FirstName)
		}

		if u.LastName != "Doe" {
			t.Fatalf("lastName changed unexpectedly: %q", u.LastName)
		}
	})

	t.Run("delete_me", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		if _, err := f.users.GetByEmail(context.Background(), "jane@example.com"); err == nil {
			t.Fatalf("user still present after delete")
		}
	})
}
