package model

import "github.com/golang-jwt/jwt/v5"

// InstructorClaims are JWT claims for instructor authentication
type InstructorClaims struct {
	InstructorID string `json:"instructorId"`
	jwt.RegisteredClaims
}

// SubjectClaims are JWT claims for session-scoped subject tokens
type SubjectClaims struct {
	SessionID string `json:"sessionId"`
	SubjectID string `json:"subjectId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for instructor login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token        string `json:"token"`
	InstructorID string `json:"instructorId"`
}
