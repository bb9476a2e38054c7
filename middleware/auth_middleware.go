package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/stockbot/auth"
	"github.com/upb/stockbot/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating API tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns its claims
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// AccessChecker answers allow-list questions
type AccessChecker interface {
	IsAllowed(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	access    AccessChecker
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, access AccessChecker, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		access:    access,
		logger:    logger,
	}
}

// authTokenCookieName is the cookie checked when no Authorization header is sent
const authTokenCookieName = "auth_token"

// RequireAuth is a middleware that requires a valid token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", claims.UserID()))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// RequireAllowed rejects users that are not on the allow-list.
// This should be called after RequireAuth.
func (m *AuthMiddleware) RequireAllowed(next http.Handler) http.Handler {
	return m.requireAccess("allowed", m.access.IsAllowed, next)
}

// RequireAdmin rejects users without the admin role.
// This should be called after RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.requireAccess("admin", m.access.IsAdmin, next)
}

func (m *AuthMiddleware) requireAccess(level string, check func(context.Context, string) (bool, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		userID := GetUserIDFromContext(ctx)
		if userID == "" {
			m.logger.Error("user id not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		ok, err := check(ctx, userID)
		if err != nil {
			m.logger.Error("access check failed",
				zap.String("request_id", requestID),
				zap.String("user_id", userID),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
			return
		}
		if !ok {
			m.logger.Warn("insufficient permissions",
				zap.String("request_id", requestID),
				zap.String("user_id", userID),
				zap.String("required", level))
			_ = utils.WriteForbidden(w, "Insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken extracts the token from the Authorization header ("Bearer TOKEN")
// or the "auth_token" cookie. The header takes precedence.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
