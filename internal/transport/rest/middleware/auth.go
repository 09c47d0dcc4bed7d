package middleware

import (
	"context"
	"net/http"
	"strings"

	"rollcall/internal/service"
)

type contextKey string

const (
	InstructorIDKey contextKey = "instructorId"
	SubjectIDKey    contextKey = "subjectId"
	SessionIDKey    contextKey = "sessionId"
)

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireInstructor validates an instructor JWT from the Authorization header
func (m *AuthMiddleware) RequireInstructor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateInstructorToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), InstructorIDKey, claims.InstructorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSubject validates a session-scoped subject JWT from the
// Authorization header or the token query param
func (m *AuthMiddleware) RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateSubjectToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, SubjectIDKey, claims.SubjectID)
		ctx = context.WithValue(ctx, SessionIDKey, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetInstructorID extracts the instructor id from context
func GetInstructorID(ctx context.Context) string {
	if v := ctx.Value(InstructorIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetSubjectID extracts the subject id from context
func GetSubjectID(ctx context.Context) string {
	if v := ctx.Value(SubjectIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetSessionID extracts the token's session scope from context
func GetSessionID(ctx context.Context) string {
	if v := ctx.Value(SessionIDKey); v != nil {
		return v.(string)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
