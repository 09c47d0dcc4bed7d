package service

import "errors"

// Every rejection the attendance core produces is a typed sentinel, so the
// transport layer can map each one to a precise user message and status code.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionConflict  = errors.New("class already has an open session")
	ErrSessionClosed    = errors.New("session is closed")
	ErrSessionNotClosed = errors.New("session is still open")
	ErrAlreadyMarked    = errors.New("attendance already recorded")
	ErrTokenExpired     = errors.New("presented token has expired")
	ErrDeviceMismatch   = errors.New("scan from a different device than the bound one")

	ErrClassNotFound = errors.New("class not found")
	ErrNotEnrolled   = errors.New("subject is not enrolled in this class")
	ErrMarkNotFound  = errors.New("no mark recorded for subject in session")
	ErrInvalidStatus = errors.New("invalid mark status")
	ErrInvalidConfig = errors.New("invalid session configuration")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
