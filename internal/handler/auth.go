package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lumoflow/auth-server/internal/config"
	"github.com/lumoflow/auth-server/internal/model"
	"github.com/lumoflow/auth-server/internal/queue"
	"github.com/lumoflow/auth-server/internal/repository"
	"github.com/lumoflow/auth-server/internal/utils"
)

const (
	dbTimeout    = 5 * time.Second
	mailTimeout  = 10 * time.Second
	resetCodeTTL = 10 * time.Minute

	// NGO accounts log in through /ngo-login; the role is fixed by the route.
	ngoRole = "NGO"

	msgInvalidCredentials = "invalid credentials"
	msgForgotGeneric      = "if an account exists for that email, a reset code has been sent"
)

// UserStore is the credential-store surface the auth handlers need.
// *repository.UserRepo satisfies it; tests use an in-memory fake.
type UserStore interface {
	Create(ctx context.Context, name, email, password, pinCode, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByEmailAndRole(ctx context.Context, email, role string) (model.User, error)
	SetResetChallenge(ctx context.Context, userID uint64, code string, expiresAt time.Time) error
	ConsumeResetChallenge(ctx context.Context, email, code, newPassword string, cost int, now time.Time) error
}

// Mailer delivers the two transactional emails of the reset flow.
type Mailer interface {
	SendResetCode(ctx context.Context, to, code string) error
	SendPasswordChanged(ctx context.Context, to string) error
}

// Publisher emits auth audit events.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// AuthHandler bundles dependencies for the auth endpoints. Mail and Events
// may be nil when SMTP or the broker is not configured; the core flows work
// without them.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Mail   Mailer
	Events Publisher
}

func NewAuthHandler(cfg config.Config, users UserStore, mail Mailer, events Publisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Mail: mail, Events: events}
}

// ----- DTOs -----

type signupReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	PinCode  string `json:"pinCode"`
	Role     string `json:"role"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type rolePart struct {
	RoleName string `json:"role_name"`
}

// userPart is the public projection of a user: no password hash, no reset
// challenge, role reshaped into an object for client convenience.
type userPart struct {
	ID    uint64   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  rolePart `json:"role"`
}

func publicUser(u model.User) userPart {
	return userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: rolePart{RoleName: u.Role}}
}

// Signup creates a new account. No token is issued; the client logs in
// afterwards.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, email and password are required"})
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = model.DefaultRole
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, req.PinCode, role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "account already exists"})
		}
		log.Printf("signup: create user failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create account"})
	}

	h.publish(queue.Event{
		Type:       queue.EventUserRegistered,
		UserID:     uid,
		Email:      req.Email,
		Role:       role,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, echo.Map{"msg": "account created successfully"})
}

// Login verifies credentials and returns a session token with the public
// user projection. Unknown email and wrong password produce the identical
// response so accounts cannot be enumerated.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidCredentials})
		}
		log.Printf("login: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidCredentials})
	}

	return h.respondWithToken(c, u)
}

// NgoLogin is the role-gated login: the account must hold the NGO role and
// be Active. Unlike plain login, the status gate applies here and its error
// names the current status.
func (h *AuthHandler) NgoLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmailAndRole(ctx, req.Email, ngoRole)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidCredentials})
		}
		log.Printf("ngo-login: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msgInvalidCredentials})
	}
	if u.Status != model.StatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{
			"error": fmt.Sprintf("account is not active (status: %s)", u.Status),
		})
	}

	return h.respondWithToken(c, u)
}

// ForgotPassword starts a reset challenge. The response is identical whether
// or not the email is registered; when it is, a 6-digit code valid for ten
// minutes is stored and mailed.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown email gets the same answer as a known one.
			return c.JSON(http.StatusOK, echo.Map{"msg": msgForgotGeneric})
		}
		log.Printf("forgot-password: query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not process request"})
	}

	code, err := utils.NewResetCode()
	if err != nil {
		log.Printf("forgot-password: generate code failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not process request"})
	}
	expiresAt := time.Now().UTC().Add(resetCodeTTL)
	if err := h.Users.SetResetChallenge(ctx, u.ID, code, expiresAt); err != nil {
		log.Printf("forgot-password: store challenge failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not process request"})
	}

	h.sendMail(func(ctx context.Context) error {
		return h.Mail.SendResetCode(ctx, u.Email, code)
	})

	return c.JSON(http.StatusOK, echo.Map{"msg": msgForgotGeneric})
}

// ResetPassword consumes a reset challenge: email, code and a live expiry
// must all match in one atomic write. On success the code is cleared, the
// password replaced, and a confirmation mailed.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, code and newPassword are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	err := h.Users.ConsumeResetChallenge(ctx, req.Email, req.Code, req.NewPassword, h.Cfg.BcryptCost, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrResetCodeInvalid) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset code"})
		}
		log.Printf("reset-password: update failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not reset password"})
	}

	h.sendMail(func(ctx context.Context) error {
		return h.Mail.SendPasswordChanged(ctx, req.Email)
	})
	h.publish(queue.Event{
		Type:       queue.EventPasswordChanged,
		Email:      req.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusOK, echo.Map{"msg": "password has been reset"})
}

// Me returns the identity decoded from the session token by the guard
// middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get("user_id"),
		"role":    c.Get("role"),
	})
}

func (h *AuthHandler) respondWithToken(c echo.Context, u model.User) error {
	tok, err := utils.NewSessionToken(h.Cfg.JWTSecret, u.ID, u.Role)
	if err != nil {
		log.Printf("login: issue token failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"msg":   "login successful",
		"token": tok.Token,
		"user":  publicUser(u),
	})
}

// sendMail dispatches one email fire-and-forget: the HTTP response never
// waits on SMTP and a delivery failure is logged, not surfaced. A completed
// password change stays committed even when its confirmation bounces.
func (h *AuthHandler) sendMail(send func(ctx context.Context) error) {
	if h.Mail == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			log.Printf("mailer: %v", err)
		}
	}()
}

// publish emits an audit event fire-and-forget.
func (h *AuthHandler) publish(ev queue.Event) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := h.Events.Publish(ctx, ev); err != nil {
			log.Printf("queue: publish %s failed: %v", ev.Type, err)
		}
	}()
}
