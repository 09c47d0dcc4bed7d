package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// Sweep records an absent mark for every enrolled subject without one. Only
// closed sessions can be swept: a sweep while check-ins are still being
// accepted would mark every not-yet-scanned subject absent and block their
// live scans. Inserts go through the unique (sessionId, subjectId) index and
// duplicates are skipped, so the sweep is idempotent and never overwrites an
// existing mark. Returns the number of marks created.
func (s *SessionService) Sweep(ctx context.Context, sessionID string) (int, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return 0, ErrSessionNotFound
	}
	if session.Status != model.SessionClosed {
		return 0, ErrSessionNotClosed
	}

	subjects, err := s.roster.ListSubjects(ctx, session.ClassID)
	if err != nil {
		return 0, fmt.Errorf("failed to list enrollments: %w", err)
	}

	created := 0
	for _, subjectID := range subjects {
		mark := &model.Mark{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			ClassID:    session.ClassID,
			SubjectID:  subjectID,
			Status:     model.MarkAbsent,
			RecordedAt: time.Now(),
			RecordedBy: model.RecordedBySweep,
		}
		err := s.marks.Insert(ctx, mark)
		if errors.Is(err, repository.ErrDuplicateMark) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to insert absent mark for %s: %w", subjectID, err)
		}
		created++
	}
	return created, nil
}
