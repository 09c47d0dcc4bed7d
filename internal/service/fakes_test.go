package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// In-memory doubles for the repository and cache interfaces. They mirror
// the semantics the mongo/redis implementations rely on: the conditional
// token commit, the unique (sessionId, subjectId) insert, and the
// set-if-absent device binding.

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	// failCommits makes the next N CommitToken calls fail, for exercising
	// the rotator's retry path.
	failCommits int
	commits     int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessionRepo) put(s *model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.sessions[s.ID] = &copied
}

func (f *fakeSessionRepo) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.ClassID == session.ClassID && existing.Status == model.SessionOpen {
			return repository.ErrDuplicateOpenSession
		}
	}
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) GetOpenByClass(ctx context.Context, classID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.ClassID == classID && session.Status == model.SessionOpen {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) ListByClass(ctx context.Context, classID string) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, session := range f.sessions {
		if session.ClassID == classID {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) CommitToken(ctx context.Context, id, token string, issuedAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommits > 0 {
		f.failCommits--
		return nil, errors.New("simulated write failure")
	}
	session, ok := f.sessions[id]
	if !ok || session.Status != model.SessionOpen {
		return nil, nil
	}
	session.PreviousToken = session.CurrentToken
	session.CurrentToken = token
	session.CurrentTokenIssuedAt = issuedAt
	f.commits++
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Status != model.SessionOpen {
		return false, nil
	}
	session.Status = model.SessionClosed
	session.ClosedAt = &closedAt
	return true, nil
}

func (f *fakeSessionRepo) SetLateMode(ctx context.Context, id string, enabled bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	session.Config.LateModeEnabled = enabled
	return true, nil
}

func (f *fakeSessionRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeMarkRepo struct {
	mu    sync.Mutex
	marks map[string]*model.Mark // sessionID+"/"+subjectID
}

func newFakeMarkRepo() *fakeMarkRepo {
	return &fakeMarkRepo{marks: make(map[string]*model.Mark)}
}

func markKey(sessionID, subjectID string) string {
	return sessionID + "/" + subjectID
}

func (f *fakeMarkRepo) Insert(ctx context.Context, mark *model.Mark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := markKey(mark.SessionID, mark.SubjectID)
	if _, exists := f.marks[key]; exists {
		return repository.ErrDuplicateMark
	}
	copied := *mark
	f.marks[key] = &copied
	return nil
}

func (f *fakeMarkRepo) Get(ctx context.Context, sessionID, subjectID string) (*model.Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mark, ok := f.marks[markKey(sessionID, subjectID)]
	if !ok {
		return nil, nil
	}
	copied := *mark
	return &copied, nil
}

func (f *fakeMarkRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Mark
	for _, mark := range f.marks {
		if mark.SessionID == sessionID {
			copied := *mark
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMarkRepo) Update(ctx context.Context, sessionID, subjectID string, correction repository.MarkCorrection) (*model.Mark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mark, ok := f.marks[markKey(sessionID, subjectID)]
	if !ok {
		return nil, nil
	}
	mark.Status = correction.Status
	mark.Reason = correction.Reason
	mark.Feedback = correction.Feedback
	mark.UpdatedBy = correction.UpdatedBy
	updatedAt := correction.UpdatedAt
	mark.UpdatedAt = &updatedAt
	copied := *mark
	return &copied, nil
}

func (f *fakeMarkRepo) CountBySession(ctx context.Context, sessionID string) (map[model.MarkStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.MarkStatus]int)
	for _, mark := range f.marks {
		if mark.SessionID == sessionID {
			counts[mark.Status]++
		}
	}
	return counts, nil
}

func (f *fakeMarkRepo) CountByClass(ctx context.Context, classID string) (map[model.MarkStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.MarkStatus]int)
	for _, mark := range f.marks {
		if mark.ClassID == classID {
			counts[mark.Status]++
		}
	}
	return counts, nil
}

func (f *fakeMarkRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeRosterRepo struct {
	mu          sync.Mutex
	classes     map[string]*model.Class
	enrollments []model.Enrollment
}

func newFakeRosterRepo() *fakeRosterRepo {
	return &fakeRosterRepo{classes: make(map[string]*model.Class)}
}

func (f *fakeRosterRepo) GetClass(ctx context.Context, classID string) (*model.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	class, ok := f.classes[classID]
	if !ok {
		return nil, nil
	}
	copied := *class
	return &copied, nil
}

func (f *fakeRosterRepo) ListSubjects(ctx context.Context, classID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.enrollments {
		if e.ClassID == classID {
			out = append(out, e.SubjectID)
		}
	}
	return out, nil
}

func (f *fakeRosterRepo) IsEnrolled(ctx context.Context, classID, subjectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.ClassID == classID && e.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRosterRepo) AddClass(ctx context.Context, class *model.Class) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *class
	f.classes[class.ID] = &copied
	return nil
}

func (f *fakeRosterRepo) Enroll(ctx context.Context, enrollment *model.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments = append(f.enrollments, *enrollment)
	return nil
}

type fakeTokenCache struct {
	mu        sync.Mutex
	snapshots map[string]*model.TokenSnapshot
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{snapshots: make(map[string]*model.TokenSnapshot)}
}

func (f *fakeTokenCache) Set(ctx context.Context, sessionID string, snapshot *model.TokenSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *snapshot
	f.snapshots[sessionID] = &copied
	return nil
}

func (f *fakeTokenCache) Get(ctx context.Context, sessionID string) (*model.TokenSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *snapshot
	return &copied, nil
}

func (f *fakeTokenCache) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, sessionID)
	return nil
}

type fakeBindingCache struct {
	mu       sync.Mutex
	bindings map[string]string
}

func newFakeBindingCache() *fakeBindingCache {
	return &fakeBindingCache{bindings: make(map[string]string)}
}

func (f *fakeBindingCache) Bind(ctx context.Context, sessionID, subjectID, fingerprint string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + ":" + subjectID
	if bound, ok := f.bindings[key]; ok {
		return bound, false, nil
	}
	f.bindings[key] = fingerprint
	return fingerprint, true, nil
}

func (f *fakeBindingCache) Get(ctx context.Context, sessionID, subjectID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bindings[sessionID+":"+subjectID], nil
}

type broadcastEvent struct {
	SessionID    string
	MsgType      string
	ToInstructor bool
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) BroadcastToDisplays(sessionID string, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{SessionID: sessionID, MsgType: msgType})
}

func (f *fakeBroadcaster) BroadcastToInstructor(sessionID string, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{SessionID: sessionID, MsgType: msgType, ToInstructor: true})
}

func (f *fakeBroadcaster) byType(msgType string) []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastEvent
	for _, e := range f.events {
		if e.MsgType == msgType {
			out = append(out, e)
		}
	}
	return out
}
