package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rollcall/internal/config"
	"rollcall/internal/model"
)

// AuthService handles instructor and subject authentication. The subject
// token is a stand-in for the external identity provider: the attendance
// core trusts whoever minted the claims.
type AuthService struct {
	instructorUsername string
	instructorPassword string
	jwtSecret          []byte
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.Auth) *AuthService {
	return &AuthService{
		instructorUsername: cfg.InstructorUsername,
		instructorPassword: cfg.InstructorPassword,
		jwtSecret:          []byte(cfg.JWTSecret),
	}
}

// Login validates credentials and returns an instructor token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if username != s.instructorUsername || password != s.instructorPassword {
		return nil, ErrInvalidCredentials
	}

	instructorID := "instructor_" + uuid.New().String()[:8]

	claims := &model.InstructorClaims{
		InstructorID: instructorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:        tokenString,
		InstructorID: instructorID,
	}, nil
}

// ValidateInstructorToken validates an instructor JWT and returns claims
func (s *AuthService) ValidateInstructorToken(tokenString string) (*model.InstructorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.InstructorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.InstructorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateSubjectToken creates a session-scoped token for a subject
func (s *AuthService) GenerateSubjectToken(sessionID, subjectID string) (string, error) {
	claims := &model.SubjectClaims{
		SessionID: sessionID,
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(6 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateSubjectToken validates a subject JWT and returns claims
func (s *AuthService) ValidateSubjectToken(tokenString string) (*model.SubjectClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.SubjectClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.SubjectClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
