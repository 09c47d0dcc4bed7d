package service

import (
	"context"
	"fmt"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// MarkService exposes the mark store to instructors: raw listing for the
// export feed and authorized manual corrections.
type MarkService struct {
	sessions repository.SessionRepo
	marks    repository.MarkRepo
}

// NewMarkService creates a new mark service
func NewMarkService(sessions repository.SessionRepo, marks repository.MarkRepo) *MarkService {
	return &MarkService{
		sessions: sessions,
		marks:    marks,
	}
}

// List returns the raw marks of a session.
func (s *MarkService) List(ctx context.Context, sessionID string) ([]*model.Mark, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return s.marks.ListBySession(ctx, sessionID)
}

// Correct applies a manual correction to an existing mark, stamping the
// corrector identity and time.
func (s *MarkService) Correct(ctx context.Context, sessionID, subjectID string, status model.MarkStatus, reason, feedback, updatedBy string) (*model.Mark, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	mark, err := s.marks.Update(ctx, sessionID, subjectID, repository.MarkCorrection{
		Status:    status,
		Reason:    reason,
		Feedback:  feedback,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update mark: %w", err)
	}
	if mark == nil {
		return nil, ErrMarkNotFound
	}
	return mark, nil
}
