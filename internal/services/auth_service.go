package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/imbroke/backend/internal/config"
	"github.com/imbroke/backend/internal/models"
	"go.uber.org/zap"
)

// CallerFunc resolves the authenticated user id of a request.
type CallerFunc func(ctx context.Context) string

type AuthService struct {
	db           *sql.DB
	redis        *redis.Client
	hasher       *PasswordHasher
	validator    *ValidationHelper
	jwt          config.JWTConfig
	queryTimeout time.Duration
	caller       CallerFunc
	logger       *zap.Logger
	now          func() time.Time
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"alice@example.com"` // User email
	Password string `json:"password" validate:"required" example:"password123"`          // User password
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255" example:"Alice"`              // Display name
	Email    string `json:"email" validate:"required,email,max=255" example:"alice@example.com"` // User email address
	Password string `json:"password" validate:"required,min=6" example:"password123"`            // User password
}

// TokenResponse carries a signed JWT
// @Description Authentication response structure
type TokenResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, hasher *PasswordHasher, jwtCfg config.JWTConfig, queryTimeout time.Duration, caller CallerFunc, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:           db,
		redis:        redisClient,
		hasher:       hasher,
		validator:    NewValidationHelper(),
		jwt:          jwtCfg,
		queryTimeout: queryTimeout,
		caller:       caller,
		logger:       logger.With(zap.String("component", "auth")),
		now:          time.Now,
	}
}

// TokenBlacklistKey is the Redis key marking a logged-out token.
func TokenBlacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

// Register handles user registration
// @Summary Register a new user
// @Description Creates a user with a zero coin balance
// @Tags user
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} models.UserResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /user/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.CreateUser(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, user.Response())
}

// CreateUser stores the user and its zero balance in one transaction.
func (s *AuthService) CreateUser(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("hash password: %w", errors.Join(ErrInternal, err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin register", err)
	}
	defer tx.Rollback()

	user := &models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Password:  hashedPassword,
		CreatedAt: s.now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password, created_at) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Name, user.Email, user.Password, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newError(ErrConflict, "Email Already Exists")
		}
		return nil, storageError("insert user", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO accounts (user_id, balance, version, updated_at) VALUES ($1, 0, 1, $2)",
		user.ID, user.CreatedAt)
	if err != nil {
		return nil, storageError("insert account", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, storageError("commit register", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))

	// The ranking lists every account, so a cached one is now stale.
	if s.redis != nil {
		if err := s.redis.Del(ctx, rankingCacheKey).Err(); err != nil {
			s.logger.Warn("failed to invalidate ranking cache", zap.Error(err))
		}
	}
	return user, nil
}

// Login handles user authentication
// @Summary Login user
// @Description Exchanges email and password for a bearer token
// @Tags user
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} TokenResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid email or password"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /user/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	var userID, hashedPassword string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password FROM users WHERE email = $1",
		strings.ToLower(strings.TrimSpace(req.Email))).Scan(&userID, &hashedPassword)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !s.hasher.Verify(req.Password, hashedPassword)) {
		s.logger.Info("login rejected", zap.String("remote_addr", r.RemoteAddr))
		SendErrorResponse(w, "Invalid email or password", http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		WriteServiceError(w, storageError("login lookup", err))
		return
	}

	token, err := s.IssueToken(userID)
	if err != nil {
		s.logger.Error("jwt signing failed", zap.String("user_id", userID), zap.Error(err))
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Logout handles user logout
// @Summary Logout user
// @Description Revokes the presented bearer token
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse "Logout successful"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /user/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if ok && s.redis != nil {
		if err := s.redis.Set(r.Context(), TokenBlacklistKey(token), "1", s.jwt.Expiry).Err(); err != nil {
			s.logger.Warn("failed to blacklist token", zap.Error(err))
		}
	}

	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

// GetCurrentUser returns the caller's profile
// @Summary Current user
// @Description Returns the authenticated user with their coin balance
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserWithBalance
// @Failure 401 {object} ErrorResponse "Token is required"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /getuser [get]
func (s *AuthService) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := s.caller(r.Context())
	if userID == "" {
		SendErrorResponse(w, "Token is required", http.StatusUnauthorized, nil)
		return
	}
	s.writeUser(w, r, userID)
}

// GetUserByID returns a user's public profile
// @Summary Get user
// @Tags user
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.UserWithBalance
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /user/{id} [get]
func (s *AuthService) GetUserByID(w http.ResponseWriter, r *http.Request) {
	s.writeUser(w, r, chi.URLParam(r, "id"))
}

func (s *AuthService) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := s.GetUser(r.Context(), userID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// GetUser loads a user together with their balance.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.UserWithBalance, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, newError(ErrNotFound, "User not found")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var user models.UserWithBalance
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at, a.balance
		FROM users u
		JOIN accounts a ON a.user_id = u.id
		WHERE u.id = $1`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt, &user.Coin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, storageError("get user", err)
	}
	return &user, nil
}

// IssueToken signs a token carrying the userId claim.
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"iat":    now.Unix(),
		"exp":    now.Add(s.jwt.Expiry).Unix(),
	})
	return token.SignedString([]byte(s.jwt.SecretKey))
}
