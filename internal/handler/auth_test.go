package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumoflow/auth-server/internal/config"
	"github.com/lumoflow/auth-server/internal/model"
	"github.com/lumoflow/auth-server/internal/queue"
	"github.com/lumoflow/auth-server/internal/repository"
	"github.com/lumoflow/auth-server/internal/utils"
)

// ----- fakes -----

type fakeStore struct {
	mu    sync.Mutex
	seq   uint64
	users map[string]*model.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*model.User)}
}

func (s *fakeStore) Create(_ context.Context, name, email, password, pinCode, role string, cost int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return 0, repository.ErrEmailExists
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.seq++
	s.users[email] = &model.User{
		ID: s.seq, Name: name, Email: email, PasswordHash: hash,
		PinCode: pinCode, Role: role, Status: model.StatusActive,
	}
	return s.seq, nil
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return *u, nil
}

func (s *fakeStore) GetByEmailAndRole(_ context.Context, email, role string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok || u.Role != role {
		return model.User{}, sql.ErrNoRows
	}
	return *u, nil
}

func (s *fakeStore) SetResetChallenge(_ context.Context, userID uint64, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			u.ResetCode = sql.NullString{String: code, Valid: true}
			u.ResetCodeExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *fakeStore) ConsumeResetChallenge(_ context.Context, email, code, newPassword string, cost int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok || !u.ResetCode.Valid || u.ResetCode.String != code ||
		!u.ResetCodeExpiresAt.Valid || !u.ResetCodeExpiresAt.Time.After(now) {
		return repository.ErrResetCodeInvalid
	}
	hash, err := utils.HashPassword(newPassword, cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.ResetCode = sql.NullString{}
	u.ResetCodeExpiresAt = sql.NullTime{}
	return nil
}

type fakeMailer struct {
	mu       sync.Mutex
	codes    []string
	confirms []string
}

func (m *fakeMailer) SendResetCode(_ context.Context, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *fakeMailer) SendPasswordChanged(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, to)
	return nil
}

func (m *fakeMailer) sentCodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.codes...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// ----- helpers -----

func testHandler() (*AuthHandler, *fakeStore, *fakeMailer, *fakePublisher) {
	store := newFakeStore()
	mail := &fakeMailer{}
	pub := &fakePublisher{}
	cfg := config.Config{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost}
	return NewAuthHandler(cfg, store, mail, pub), store, mail, pub
}

func doJSON(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func signup(t *testing.T, a *AuthHandler, name, email, password string) {
	t.Helper()
	rec := doJSON(t, a.Signup, `{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
}

// ----- tests -----

func TestSignupAndLogin(t *testing.T) {
	a, _, _, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	rec := doJSON(t, a.Login, `{"email":"a@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Msg   string `json:"msg"`
		Token string `json:"token"`
		User  struct {
			ID    uint64 `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
			Role  struct {
				RoleName string `json:"role_name"`
			} `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, "Alice", resp.User.Name)
	assert.Equal(t, "Student", resp.User.Role.RoleName) // defaulted role

	// the public projection must not leak the password in any form
	assert.NotContains(t, rec.Body.String(), "password")

	uid, role, err := utils.ParseSessionToken("test-secret", resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, uid)
	assert.Equal(t, "Student", role)
}

func TestSignupValidation(t *testing.T) {
	a, _, _, _ := testHandler()
	for _, body := range []string{
		`{"email":"a@x.com","password":"pw1"}`,
		`{"name":"Alice","password":"pw1"}`,
		`{"name":"Alice","email":"a@x.com"}`,
	} {
		rec := doJSON(t, a.Signup, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	a, store, _, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	rec := doJSON(t, a.Signup, `{"name":"Alice II","email":"a@x.com","password":"pw2"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")
	assert.Len(t, store.users, 1)
}

func TestLoginUniformFailure(t *testing.T) {
	a, _, _, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	wrongPw := doJSON(t, a.Login, `{"email":"a@x.com","password":"nope"}`)
	unknown := doJSON(t, a.Login, `{"email":"ghost@x.com","password":"pw1"}`)

	// wrong password and unknown email must be indistinguishable
	require.Equal(t, http.StatusBadRequest, wrongPw.Code)
	require.Equal(t, wrongPw.Code, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
}

func TestNgoLogin(t *testing.T) {
	a, store, _, _ := testHandler()
	rec := doJSON(t, a.Signup, `{"name":"Org","email":"ngo@x.com","password":"pw1","role":"NGO"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, a.NgoLogin, `{"email":"ngo@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role_name":"NGO"`)

	// non-Active accounts are rejected with the status in the message
	store.users["ngo@x.com"].Status = model.StatusFrozen
	rec = doJSON(t, a.NgoLogin, `{"email":"ngo@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Frozen")

	// a non-NGO account cannot use the gated login at all
	signup(t, a, "Bob", "bob@x.com", "pw1")
	rec = doJSON(t, a.NgoLogin, `{"email":"bob@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestNgoLoginStatusNotCheckedByPlainLogin(t *testing.T) {
	a, store, _, _ := testHandler()
	rec := doJSON(t, a.Signup, `{"name":"Org","email":"ngo@x.com","password":"pw1","role":"NGO"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	store.users["ngo@x.com"].Status = model.StatusBlocked

	// the status gate applies only to the role-gated login
	rec = doJSON(t, a.Login, `{"email":"ngo@x.com","password":"pw1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordEnumerationSafe(t *testing.T) {
	a, store, mail, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	known := doJSON(t, a.ForgotPassword, `{"email":"a@x.com"}`)
	unknown := doJSON(t, a.ForgotPassword, `{"email":"ghost@x.com"}`)

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	u := store.users["a@x.com"]
	require.True(t, u.ResetCode.Valid)
	assert.Len(t, u.ResetCode.String, 6)
	assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), u.ResetCodeExpiresAt.Time, time.Minute)

	// mail is dispatched off the request path
	require.Eventually(t, func() bool {
		codes := mail.sentCodes()
		return len(codes) == 1 && codes[0] == u.ResetCode.String
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResetPasswordFlow(t *testing.T) {
	a, store, _, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	rec := doJSON(t, a.ForgotPassword, `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := store.users["a@x.com"].ResetCode.String

	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"`+code+`","newPassword":"pw2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// old password rejected, new accepted
	rec = doJSON(t, a.Login, `{"email":"a@x.com","password":"pw1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, a.Login, `{"email":"a@x.com","password":"pw2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the consumed code cannot be replayed
	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"`+code+`","newPassword":"pw3"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired")
}

func TestResetPasswordWrongOrExpiredCode(t *testing.T) {
	a, store, _, _ := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	rec := doJSON(t, a.ForgotPassword, `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"000000","newPassword":"pw2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// expire the pending challenge and try the real code
	u := store.users["a@x.com"]
	code := u.ResetCode.String
	u.ResetCodeExpiresAt = sql.NullTime{Time: time.Now().UTC().Add(-time.Second), Valid: true}
	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"`+code+`","newPassword":"pw2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// password unchanged throughout
	rec = doJSON(t, a.Login, `{"email":"a@x.com","password":"pw1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPasswordValidation(t *testing.T) {
	a, _, _, _ := testHandler()
	rec := doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthEventsPublished(t *testing.T) {
	a, store, _, pub := testHandler()
	signup(t, a, "Alice", "a@x.com", "pw1")

	rec := doJSON(t, a.ForgotPassword, `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := store.users["a@x.com"].ResetCode.String
	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"`+code+`","newPassword":"pw2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// events are emitted from goroutines, so assert on the set, not order
	require.Eventually(t, func() bool {
		types := pub.types()
		if len(types) != 2 {
			return false
		}
		seen := map[string]bool{types[0]: true, types[1]: true}
		return seen[queue.EventUserRegistered] && seen[queue.EventPasswordChanged]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlersWorkWithoutMailerOrBroker(t *testing.T) {
	store := newFakeStore()
	cfg := config.Config{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost}
	a := NewAuthHandler(cfg, store, nil, nil)

	signup(t, a, "Alice", "a@x.com", "pw1")
	rec := doJSON(t, a.ForgotPassword, `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := store.users["a@x.com"].ResetCode.String
	rec = doJSON(t, a.ResetPassword, `{"email":"a@x.com","code":"`+code+`","newPassword":"pw2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}
