package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"rollcall/internal/cache"
	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// commitBackoff is the retry schedule for a failed token commit. The first
// entry is the immediate attempt.
var commitBackoff = []time.Duration{0, 250 * time.Millisecond, time.Second, 3 * time.Second}

// Rotator owns the rotating secret of every open session: one timer
// goroutine per session, armed on open and disarmed synchronously on close.
// The session document is the single source of truth for the committed
// token; the rotator never publishes a token it has not durably committed.
type Rotator struct {
	sessions    repository.SessionRepo
	tokens      cache.TokenCache
	secret      []byte
	broadcaster Broadcaster

	mu     sync.Mutex
	timers map[string]*rotationTimer
}

type rotationTimer struct {
	stop chan struct{}
	done chan struct{}
}

// NewRotator creates a new token rotator
func NewRotator(sessions repository.SessionRepo, tokens cache.TokenCache, secret []byte) *Rotator {
	return &Rotator{
		sessions: sessions,
		tokens:   tokens,
		secret:   secret,
		timers:   make(map[string]*rotationTimer),
	}
}

// SetBroadcaster injects the live-event sink (the ws hub implements it)
func (r *Rotator) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// NewToken generates a fresh opaque rotating secret.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Rotate performs a single rotation for the session: generate a token,
// commit it with bounded backoff, then republish the snapshot and fallback
// code. It returns the updated session, or nil when the session is no
// longer open (the generated token is discarded and previousToken does not
// advance).
func (r *Rotator) Rotate(ctx context.Context, sessionID string) (*model.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	var session *model.Session
	var lastErr error
	for _, delay := range commitBackoff {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		session, lastErr = r.sessions.CommitToken(ctx, sessionID, token, time.Now())
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("commit token: %w", lastErr)
	}
	if session == nil {
		return nil, nil
	}

	r.publish(ctx, session)
	return session, nil
}

func (r *Rotator) publish(ctx context.Context, session *model.Session) {
	snapshot := &model.TokenSnapshot{
		Token:        session.CurrentToken,
		FallbackCode: FallbackCode(r.secret, session.ID, session.CurrentToken),
		IssuedAt:     session.CurrentTokenIssuedAt,
	}
	// Cache refresh is best effort; the session document already holds the
	// committed token and the poll path falls back to it.
	if err := r.tokens.Set(ctx, session.ID, snapshot); err != nil {
		log.Printf("Token cache refresh failed for session %s: %v", session.ID, err)
	}
	if r.broadcaster != nil {
		r.broadcaster.BroadcastToDisplays(session.ID, EventTokenRotated, snapshot)
	}
}

// Arm starts the rotation timer for an open session. Arming an already
// armed session is a no-op.
func (r *Rotator) Arm(sessionID string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.timers[sessionID]; exists {
		return
	}
	t := &rotationTimer{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.timers[sessionID] = t
	go r.run(sessionID, interval, t)
}

// Disarm stops the session's rotation timer and waits for the loop to exit,
// so no rotation can land after the caller proceeds to close the session.
func (r *Rotator) Disarm(sessionID string) {
	r.mu.Lock()
	t, ok := r.timers[sessionID]
	if ok {
		delete(r.timers, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	close(t.stop)
	<-t.done
}

// Armed reports whether a rotation timer is running for the session.
func (r *Rotator) Armed(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[sessionID]
	return ok
}

func (r *Rotator) run(sessionID string, interval time.Duration, t *rotationTimer) {
	defer func() {
		r.mu.Lock()
		if current, ok := r.timers[sessionID]; ok && current == t {
			delete(r.timers, sessionID)
		}
		r.mu.Unlock()
		close(t.done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastCommit := time.Now()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			session, err := r.Rotate(ctx, sessionID)
			cancel()

			switch {
			case err != nil:
				log.Printf("Rotation failed for session %s: %v", sessionID, err)
				if time.Since(lastCommit) > 2*interval && r.broadcaster != nil {
					r.broadcaster.BroadcastToInstructor(sessionID, EventRotationStalled,
						map[string]string{"sessionId": sessionID})
				}
			case session == nil:
				// Session closed under us; the conditional commit matched
				// nothing and the loop has no more work.
				return
			default:
				lastCommit = time.Now()
			}
		}
	}
}
