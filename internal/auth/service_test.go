package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	stdtime "time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/email"
	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/testdb"
)

type authFixture struct {
	store    *db.DB
	clock    *FakeClock
	mail     *email.MockEmailService
	users    *UserService
	sessions *SessionService
	mux      *http.ServeMux
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := testdb.New(t)
	clock := NewFakeClock(stdtime.Date(2026, 3, 1, 12, 0, 0, 0, stdtime.UTC))
	mail := email.NewMockEmailService()

	users := NewUserService(store, mail, "http://localhost:8080/")
	users.SetClock(clock)
	users.SetHasher(FakeInsecureHasher{})

	sessions := NewSessionService(store, stdtime.Hour)
	sessions.SetClock(clock)

	mux := http.NewServeMux()
	NewHandler(users, sessions, NewMiddleware(sessions)).RegisterRoutes(mux)

	return &authFixture{store: store, clock: clock, mail: mail, users: users, sessions: sessions, mux: mux}
}

func (f *authFixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// ====================
// UserService
// ====================

func TestUserService_RegisterAndLogin(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, "Ada@Example.com", "correct horse", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, GenerateUserID("ada@example.com"), user.ID)
	assert.False(t, user.EmailVerified)

	got, err := f.users.VerifyLogin(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.users.VerifyLogin(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.users.VerifyLogin(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_RegisterRejectsDuplicateAndWeak(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	_, err = f.users.Register(ctx, "ADA@example.com", "another password", "Other")
	assert.True(t, errs.Is(err, errs.AlreadyExists), "got %v", err)

	_, err = f.users.Register(ctx, "bob@example.com", "short", "Bob")
	assert.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)

	_, err = f.users.Register(ctx, "not-an-email", "correct horse", "Bob")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestUserService_VerifyEmailFlow(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)
	require.Equal(t, 1, f.mail.Count())

	sent := f.mail.LastEmail()
	assert.Equal(t, email.TemplateVerifyEmail, sent.Template)
	data, ok := sent.Data.(email.VerifyEmailData)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(data.Link, "http://localhost:8080/auth/verify-email?token="), data.Link)

	link, err := url.Parse(data.Link)
	require.NoError(t, err)
	token := link.Query().Get("token")

	verified, err := f.users.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.EmailVerified)
	assert.Equal(t, email.TemplateWelcome, f.mail.LastEmail().Template)

	// Tokens are single use.
	_, err = f.users.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.users.VerifyEmail(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserService_VerifyTokenExpires(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)
	link, err := url.Parse(f.mail.LastEmail().Data.(email.VerifyEmailData).Link)
	require.NoError(t, err)

	f.clock.Advance(VerifyTokenExpiry + stdtime.Second)
	_, err = f.users.VerifyEmail(ctx, link.Query().Get("token"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// ====================
// SessionService
// ====================

func TestSessionService_Lifecycle(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	sessionID, err := f.sessions.Create(ctx, user.ID)
	require.NoError(t, err)

	userID, err := f.sessions.Validate(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = f.sessions.Validate(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.clock.Advance(f.sessions.Duration())
	_, err = f.sessions.Validate(ctx, sessionID)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = f.sessions.Validate(ctx, sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired sessions are removed on lookup")
}

func TestSessionService_Cleanup(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, user.ID)
	require.NoError(t, err)
	_, err = f.sessions.Create(ctx, user.ID)
	require.NoError(t, err)

	n, err := f.sessions.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * f.sessions.Duration())
	n, err = f.sessions.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetFromRequest_BearerAndCookie(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetFromRequest(req)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	token, err := GetFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", token)

	req.Header.Set("Authorization", "bearer from-header")
	token, err = GetFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-header", token)

	req.Header.Set("Authorization", "Basic abc")
	token, err = GetFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", token)
}

// ====================
// HTTP handlers
// ====================

func TestHandlers_RegisterSessionLogout(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse","name":"Ada"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Token)
	assert.Equal(t, "ada@example.com", created.User.Email)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, created.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie and the bearer header authenticate the same session.
	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	viaCookie := httptest.NewRecorder()
	f.mux.ServeHTTP(viaCookie, req)
	assert.Equal(t, http.StatusOK, viaCookie.Code)

	viaBearer := f.do(t, http.MethodGet, "/auth/session", "", created.Token)
	assert.Equal(t, http.StatusOK, viaBearer.Code)
	assert.JSONEq(t, viaCookie.Body.String(), viaBearer.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/logout", "", created.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/auth/session", "", created.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestHandlers_LoginErrors(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrong password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"correct horse"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_VerifyEmail(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	link, err := url.Parse(f.mail.LastEmail().Data.(email.VerifyEmailData).Link)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/auth/verify-email?"+link.RawQuery, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/auth/verify-email?"+link.RawQuery, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_LogoutAllEndsEverySession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var first SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var second SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.NotEqual(t, first.Token, second.Token)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/auth/logout-all", "", "").Code)

	rec = f.do(t, http.MethodPost, "/auth/logout-all", "", second.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	for _, token := range []string{first.Token, second.Token} {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/auth/session", "", token).Code)
	}
}

func TestHandlers_ResendVerification(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", `{"email":"ada@example.com","password":"correct horse","name":"Ada"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	firstLink := f.mail.LastEmail().Data.(email.VerifyEmailData).Link

	rec = f.do(t, http.MethodPost, "/auth/verify-email/resend", "", created.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, f.mail.Count())
	resent := f.mail.LastEmail()
	assert.Equal(t, email.TemplateVerifyEmail, resent.Template)
	secondLink := resent.Data.(email.VerifyEmailData).Link
	assert.NotEqual(t, firstLink, secondLink)

	link, err := url.Parse(secondLink)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/verify-email?"+link.RawQuery, "", "").Code)

	rec = f.do(t, http.MethodPost, "/auth/verify-email/resend", "", created.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"email is already verified"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/auth/verify-email/resend", "", "").Code)
}
