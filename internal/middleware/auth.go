package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/imbroke/backend/internal/services"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext returns the authenticated caller, or "" on public routes.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID attaches an authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

type Authenticator struct {
	secret []byte
	redis  *redis.Client
	logger *zap.Logger
}

// NewAuthenticator verifies HS256 tokens signed with secret. redisClient may
// be nil, in which case logged-out tokens stay valid until they expire.
func NewAuthenticator(secret string, redisClient *redis.Client, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		redis:  redisClient,
		logger: logger.With(zap.String("component", "auth_middleware")),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := services.BearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Token is required", http.StatusUnauthorized, nil)
			return
		}

		userID, err := a.ParseToken(token)
		if err != nil {
			a.logger.Debug("rejected token", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		if a.isBlacklisted(r.Context(), token) {
			services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// ParseToken validates signature and expiry and returns the userId claim.
func (a *Authenticator) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", errors.New("token has no userId claim")
	}
	return userID, nil
}

func (a *Authenticator) isBlacklisted(ctx context.Context, token string) bool {
	if a.redis == nil {
		return false
	}
	n, err := a.redis.Exists(ctx, services.TokenBlacklistKey(token)).Result()
	if err != nil {
		a.logger.Warn("token blacklist lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}
