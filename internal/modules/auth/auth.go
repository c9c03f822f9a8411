package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/modules/draft"
	jwtpkg "github.com/mx-space/drafts/internal/pkg/jwt"
	"github.com/mx-space/drafts/internal/pkg/response"
	"github.com/mx-space/drafts/internal/pkg/session"
)

const DefaultEditTokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("wrong username or password")
	ErrUserExists         = errors.New("username already taken")
	ErrSessionInactive    = errors.New("session expired or revoked")
)

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore is the part of session.Store the auth service needs.
type SessionStore interface {
	Issue(ctx context.Context, userID, ip, ua string, ttl time.Duration) (string, *models.UserSession, error)
	IsActive(ctx context.Context, userID, sessionID string) (bool, error)
	Touch(ctx context.Context, userID, sessionID string)
	Revoke(ctx context.Context, userID, sessionID string) error
}

type Service struct {
	users    UserStore
	sessions SessionStore
	editTTL  time.Duration
	logger   *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("AuthService")
		}
	}
}

func WithEditTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.editTTL = d
		}
	}
}

func NewService(users UserStore, sessions SessionStore, opts ...Option) *Service {
	s := &Service{users: users, sessions: sessions, editTTL: DefaultEditTokenTTL, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, username, password, name string) (*models.UserModel, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = username
	}
	u := &models.UserModel{Username: username, Password: string(hash), Name: name}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and opens a session, returning its token.
func (s *Service) Login(ctx context.Context, username, password, ip, ua string) (string, *models.UserSession, error) {
	u, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		s.logger.Warn("login failed", zap.String("username", u.Username), zap.String("ip", ip))
		return "", nil, ErrInvalidCredentials
	}

	token, sess, err := s.sessions.Issue(ctx, u.ID, ip, ua, session.DefaultTTL)
	if err != nil {
		return "", nil, fmt.Errorf("issue session: %w", err)
	}
	if err := s.users.RecordLogin(ctx, u.ID, ip, time.Now()); err != nil {
		s.logger.Warn("record login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return token, sess, nil
}

func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	err := s.sessions.Revoke(ctx, userID, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return err
}

// ValidateToken accepts a session token whose session is still active.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*jwtpkg.Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing token")
	}
	claims, err := jwtpkg.ParsePurpose(raw, jwtpkg.PurposeSession)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.IsActive(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionInactive
	}
	s.sessions.Touch(ctx, claims.UserID, claims.SessionID)
	return claims, nil
}

// EditToken signs a token an editor page sends back with every draft save.
func (s *Service) EditToken(userID, sessionID string) (string, error) {
	if userID == "" || sessionID == "" {
		return "", ErrSessionInactive
	}
	return jwtpkg.SignEditToken(userID, sessionID, s.editTTL)
}

// VerifyEditToken accepts token only when it was issued to actor's current session
// and that session is still active. A malformed token is a rejection, not an error.
func (s *Service) VerifyEditToken(ctx context.Context, actor draft.Actor, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" || actor.UserID == "" || actor.SessionID == "" {
		return false, nil
	}
	claims, err := jwtpkg.ParsePurpose(token, jwtpkg.PurposeEdit)
	if err != nil {
		return false, nil
	}
	if claims.UserID != actor.UserID || claims.SessionID != actor.SessionID {
		return false, nil
	}
	return s.sessions.IsActive(ctx, actor.UserID, actor.SessionID)
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.login)
	a.POST("/logout", authMW, h.logout)
	a.GET("/edit-token", authMW, h.editToken)
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, sess, err := h.svc.Login(c.Request.Context(), dto.Username, dto.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, loginResponse{Token: token, ExpiresAt: sess.ExpiresAt})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentSessionID(c)); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) editToken(c *gin.Context) {
	token, err := h.svc.EditToken(middleware.CurrentUserID(c), middleware.CurrentSessionID(c))
	if err != nil {
		response.ForbiddenMsg(c, err.Error())
		return
	}
	response.OK(c, gin.H{"token": token})
}
