package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/cache"
	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// ScanRequest is a presented proof of presence.
type ScanRequest struct {
	SessionID         string `json:"sessionId"`
	Token             string `json:"token"`
	SubjectID         string `json:"subjectId"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

// ScanService validates presented proofs and records marks. Any number of
// requests run in parallel; the unique mark index and the SETNX binding
// write resolve every race in favour of exactly one winner.
type ScanService struct {
	sessions    repository.SessionRepo
	marks       repository.MarkRepo
	bindings    cache.BindingCache
	broadcaster Broadcaster
}

// NewScanService creates a new scan verification service
func NewScanService(
	sessions repository.SessionRepo,
	marks repository.MarkRepo,
	bindings cache.BindingCache,
) *ScanService {
	return &ScanService{
		sessions: sessions,
		marks:    marks,
		bindings: bindings,
	}
}

// SetBroadcaster injects the live-event sink
func (s *ScanService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Submit runs the ordered verification chain and, on success, writes
// exactly one mark and returns it. First failing check wins:
// session lookup, idempotency, token freshness, device binding,
// classification.
func (s *ScanService) Submit(ctx context.Context, req ScanRequest) (*model.Mark, error) {
	session, err := s.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	existing, err := s.marks.Get(ctx, req.SessionID, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing mark: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMarked
	}

	// The two-generation window absorbs the rotation that may happen
	// between the client fetching the token and submitting it.
	if !session.AcceptsToken(req.Token) {
		return nil, ErrTokenExpired
	}

	if session.Config.StrictDeviceBinding {
		bound, _, err := s.bindings.Bind(ctx, req.SessionID, req.SubjectID, req.DeviceFingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to bind device: %w", err)
		}
		if bound != req.DeviceFingerprint {
			return nil, ErrDeviceMismatch
		}
	}

	var status model.MarkStatus
	switch {
	case session.Status == model.SessionOpen:
		status = model.MarkPresent
	case session.Config.LateModeEnabled:
		status = model.MarkLate
	default:
		return nil, ErrSessionClosed
	}

	mark := &model.Mark{
		ID:                uuid.NewString(),
		SessionID:         req.SessionID,
		ClassID:           session.ClassID,
		SubjectID:         req.SubjectID,
		Status:            status,
		DeviceFingerprint: req.DeviceFingerprint,
		RecordedAt:        time.Now(),
		RecordedBy:        model.RecordedByScan,
	}
	if err := s.marks.Insert(ctx, mark); err != nil {
		if errors.Is(err, repository.ErrDuplicateMark) {
			// Lost the insert race to a concurrent scan from the same
			// subject; same outcome as the idempotency guard above.
			return nil, ErrAlreadyMarked
		}
		return nil, fmt.Errorf("failed to record mark: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToInstructor(req.SessionID, EventScanAccepted, map[string]interface{}{
			"subjectId":  mark.SubjectID,
			"status":     mark.Status,
			"recordedAt": mark.RecordedAt,
		})
	}
	return mark, nil
}
