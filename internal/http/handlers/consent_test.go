package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/domain/consent"
	"github.com/nutriscan/nutriscan/internal/http/handlers"
	"github.com/nutriscan/nutriscan/internal/http/middlewares"
	"github.com/nutriscan/nutriscan/internal/repo/memory"
)

type consentFixture struct {
	store *memory.ConsentsRepo
	r     *gin.Engine
	token string
}

func newConsentFixture(t *testing.T) *consentFixture {
	t.Helper()

	store := memory.NewConsentsRepo()
	jwt := testJWT()

	token, err := jwt.GenerateAccessToken("user-1", "jane@example.com", true)

	if err != nil {
		t.Fatalf("token: %v", err)
	}

	h := handlers.NewConsentHandler(store)
	authMw := middlewares.NewAuthMiddleware(jwt)

	r := gin.New()

	g := r.Group("/consent", authMw.RequireAuth())
	g.GET("", h.Get)
	g.PUT("", h.Update)

	return &consentFixture{store: store, r: r, token: token}
}

func (f *consentFixture) do(t *testing.T, method, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request

	if body != "" {
		req = httptest.NewRequest(method, "/consent", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, "/consent", nil)
	}

	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)

	return w
}

type consentEnvelope struct {
	Data struct {
		Consent consent.Consent `json:"consent"`
	} `json:"data"`
}

func TestConsentCreatedLazily(t *testing.T) {
	f := newConsentFixture(t)

	w := f.do(t, http.MethodGet, "")

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	var resp consentEnvelope

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	c := resp.Data.Consent

	if !c.Essential {
		t.Fatalf("essential consent must default true")
	}

	if c.Analytics || c.Communications || c.Research {
		t.Fatalf("optional consents must default false: %+v", c)
	}

	if len(c.History) != 0 {
		t.Fatalf("fresh record has history: %+v", c.History)
	}
}

func TestConsentUpdateAppendsHistory(t *testing.T) {
	f := newConsentFixture(t)

	w := f.do(t, http.MethodPut, `{"analytics": true, "research": true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	var resp consentEnvelope

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	c := resp.Data.Consent

	if !c.Analytics || !c.Research || c.Communications {
		t.Fatalf("flags not applied: %+v", c)
	}

	if len(c.History) != 2 {
		t.Fatalf("history entries = %d, want 2 (one per changed field)", len(c.History))
	}

	for _, e := range c.History {
		if e.UserAgent != "test-agent" {
			t.Fatalf("history missing user agent: %+v", e)
		}

		if !e.Granted {
			t.Fatalf("granted flag wrong: %+v", e)
		}
	}

	// repeating the same values is a no-op, no extra history
	w = f.do(t, http.MethodPut, `{"analytics": true}`)

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Data.Consent.History) != 2 {
		t.Fatalf("no-op update grew history to %d", len(resp.Data.Consent.History))
	}

	// revoking appends a granted=false entry
	w = f.do(t, http.MethodPut, `{"analytics": false}`)

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	c = resp.Data.Consent

	if c.Analytics {
		t.Fatalf("analytics not revoked")
	}

	last := c.History[len(c.History)-1]

	if last.Type != "analytics" || last.Granted {
		t.Fatalf("revocation entry wrong: %+v", last)
	}
}
