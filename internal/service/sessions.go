package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/cache"
	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// SessionService owns the session state machine: open -> closed, with the
// late-mode flag orthogonal to both states.
type SessionService struct {
	sessions     repository.SessionRepo
	marks        repository.MarkRepo
	roster       repository.RosterRepo
	tokens       cache.TokenCache
	rotator      *Rotator
	sweepOnClose bool
	broadcaster  Broadcaster

	mu              sync.Mutex
	autoCloseTimers map[string]*time.Timer
}

// NewSessionService creates a new session lifecycle service
func NewSessionService(
	sessions repository.SessionRepo,
	marks repository.MarkRepo,
	roster repository.RosterRepo,
	tokens cache.TokenCache,
	rotator *Rotator,
	sweepOnClose bool,
) *SessionService {
	return &SessionService{
		sessions:        sessions,
		marks:           marks,
		roster:          roster,
		tokens:          tokens,
		rotator:         rotator,
		sweepOnClose:    sweepOnClose,
		autoCloseTimers: make(map[string]*time.Timer),
	}
}

// SetBroadcaster injects the live-event sink
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Open creates a session for the class, writes the first token and arms the
// rotator. A class can have at most one open session.
func (s *SessionService) Open(ctx context.Context, classID, createdBy string, cfg model.SessionConfig) (*model.Session, error) {
	if err := normalizeConfig(&cfg); err != nil {
		return nil, err
	}

	class, err := s.roster.GetClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	if class == nil {
		return nil, ErrClassNotFound
	}

	existing, err := s.sessions.GetOpenByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open sessions: %w", err)
	}
	if existing != nil {
		return nil, ErrSessionConflict
	}

	session := &model.Session{
		ID:        uuid.NewString(),
		Code:      generateDisplayCode(),
		ClassID:   classID,
		CreatedBy: createdBy,
		Status:    model.SessionOpen,
		Config:    cfg,
		CreatedAt: time.Now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		// The partial unique index closes the race between the check above
		// and this insert.
		if errors.Is(err, repository.ErrDuplicateOpenSession) {
			return nil, ErrSessionConflict
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// First token is committed before Open returns so the display has
	// something to render immediately.
	rotated, err := s.rotator.Rotate(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue first token: %w", err)
	}
	if rotated != nil {
		session = rotated
	}

	s.rotator.Arm(session.ID, session.RotationInterval())
	s.scheduleAutoClose(session.ID, time.Duration(cfg.DurationMin)*time.Minute)

	log.Printf("Opened session %s (code %s) for class %s", session.ID, session.Code, classID)
	return session, nil
}

// Close transitions the session to closed. Idempotent: closing a closed
// session is a no-op. The rotation timer is disarmed before the status
// commit, so no rotation can be observed after close.
func (s *SessionService) Close(ctx context.Context, id string) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	s.cancelAutoClose(id)
	s.rotator.Disarm(id)

	if session.Status == model.SessionClosed {
		return nil
	}

	closed, err := s.sessions.Close(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if !closed {
		// Lost the race to another closer; same observable outcome.
		return nil
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToInstructor(id, EventSessionClosed, map[string]string{"sessionId": id})
		s.broadcaster.BroadcastToDisplays(id, EventSessionClosed, map[string]string{"sessionId": id})
	}

	if s.sweepOnClose {
		count, err := s.Sweep(ctx, id)
		if err != nil {
			log.Printf("Absence sweep failed for session %s: %v", id, err)
		} else {
			log.Printf("Absence sweep recorded %d absent marks for session %s", count, id)
		}
	}
	return nil
}

// SetLateMode flips the post-close classification flag; allowed in either
// session state.
func (s *SessionService) SetLateMode(ctx context.Context, id string, enabled bool) error {
	found, err := s.sessions.SetLateMode(ctx, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set late mode: %w", err)
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

// Get retrieves a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListByClass returns every session of a class, for the reporting surface.
func (s *SessionService) ListByClass(ctx context.Context, classID string) ([]*model.Session, error) {
	return s.sessions.ListByClass(ctx, classID)
}

// Join verifies the subject belongs to the session's class before the
// handler mints a session-scoped subject token.
func (s *SessionService) Join(ctx context.Context, sessionID, subjectID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	enrolled, err := s.roster.IsEnrolled(ctx, session.ClassID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	return session, nil
}

// CurrentToken returns the live token snapshot for the display surface,
// plus a stalled flag once the committed token is older than twice the
// rotation interval while the session is still open.
func (s *SessionService) CurrentToken(ctx context.Context, id string) (*model.TokenSnapshot, bool, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, false, ErrSessionNotFound
	}

	stalled := session.Status == model.SessionOpen &&
		time.Since(session.CurrentTokenIssuedAt) > 2*session.RotationInterval()

	snapshot, err := s.tokens.Get(ctx, id)
	if err != nil {
		log.Printf("Token cache read failed for session %s: %v", id, err)
		snapshot = nil
	}
	if snapshot == nil || snapshot.Token != session.CurrentToken {
		// Cache miss or stale entry; rebuild from the committed document.
		snapshot = &model.TokenSnapshot{
			Token:        session.CurrentToken,
			FallbackCode: FallbackCode(s.rotator.secret, session.ID, session.CurrentToken),
			IssuedAt:     session.CurrentTokenIssuedAt,
		}
		if err := s.tokens.Set(ctx, id, snapshot); err != nil {
			log.Printf("Token cache backfill failed for session %s: %v", id, err)
		}
	}
	return snapshot, stalled, nil
}

func (s *SessionService) scheduleAutoClose(id string, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCloseTimers[id] = time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Close(ctx, id); err != nil {
			log.Printf("Auto-close failed for session %s: %v", id, err)
		}
	})
}

func (s *SessionService) cancelAutoClose(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.autoCloseTimers[id]; ok {
		timer.Stop()
		delete(s.autoCloseTimers, id)
	}
}

func normalizeConfig(cfg *model.SessionConfig) error {
	if cfg.RotationIntervalSec == 0 {
		cfg.RotationIntervalSec = model.DefaultRotationIntervalSec
	}
	if cfg.RotationIntervalSec < model.MinRotationIntervalSec || cfg.RotationIntervalSec > model.MaxRotationIntervalSec {
		return fmt.Errorf("%w: rotation interval %ds outside [%d,%d]",
			ErrInvalidConfig, cfg.RotationIntervalSec, model.MinRotationIntervalSec, model.MaxRotationIntervalSec)
	}
	if cfg.DurationMin < model.MinDurationMin || cfg.DurationMin > model.MaxDurationMin {
		return fmt.Errorf("%w: duration %dm outside [%d,%d]",
			ErrInvalidConfig, cfg.DurationMin, model.MinDurationMin, model.MaxDurationMin)
	}
	return nil
}

// generateDisplayCode creates a 6-char code for projection surfaces, from an
// alphabet without ambiguous characters.
func generateDisplayCode() string {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	b := make([]byte, codeLen)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has bigger problems; fall
		// back to the uuid source rather than returning an error here.
		return uuid.NewString()[:codeLen]
	}
	code := make([]byte, codeLen)
	for i := range code {
		code[i] = chars[int(b[i])%len(chars)]
	}
	return string(code)
}
