package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/model"
)

type sessionFixture struct {
	sessions *fakeSessionRepo
	marks    *fakeMarkRepo
	roster   *fakeRosterRepo
	tokens   *fakeTokenCache
	rotator  *Rotator
	svc      *SessionService
}

func newSessionFixture(t *testing.T, sweepOnClose bool) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		sessions: newFakeSessionRepo(),
		marks:    newFakeMarkRepo(),
		roster:   newFakeRosterRepo(),
		tokens:   newFakeTokenCache(),
	}
	f.rotator = NewRotator(f.sessions, f.tokens, []byte("test-secret"))
	f.svc = NewSessionService(f.sessions, f.marks, f.roster, f.tokens, f.rotator, sweepOnClose)
	if err := f.roster.AddClass(context.Background(), &model.Class{ID: "class-1", Name: "Test Class"}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	return f
}

func (f *sessionFixture) enroll(t *testing.T, subjects ...string) {
	t.Helper()
	for _, s := range subjects {
		err := f.roster.Enroll(context.Background(), &model.Enrollment{ClassID: "class-1", SubjectID: s})
		if err != nil {
			t.Fatalf("Enroll: %v", err)
		}
	}
}

func TestOpenSession(t *testing.T) {
	t.Parallel()

	t.Run("defaults and first token", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{
			DurationMin: 45,
		})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer f.svc.Close(context.Background(), session.ID)

		if session.Config.RotationIntervalSec != model.DefaultRotationIntervalSec {
			t.Errorf("rotation interval: got %d, want default %d",
				session.Config.RotationIntervalSec, model.DefaultRotationIntervalSec)
		}
		if session.CurrentToken == "" {
			t.Error("session opened without a committed first token")
		}
		if len(session.Code) != 6 {
			t.Errorf("display code %q, want 6 chars", session.Code)
		}
		if !f.rotator.Armed(session.ID) {
			t.Error("rotator not armed after open")
		}
	})

	t.Run("config bounds", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		tests := []model.SessionConfig{
			{RotationIntervalSec: 5, DurationMin: 45},   // interval too short
			{RotationIntervalSec: 200, DurationMin: 45}, // interval too long
			{RotationIntervalSec: 30, DurationMin: 2},   // duration too short
			{RotationIntervalSec: 30, DurationMin: 400}, // duration too long
		}
		for _, cfg := range tests {
			_, err := f.svc.Open(context.Background(), "class-1", "instructor_1", cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Open(%+v): got %v, want ErrInvalidConfig", cfg, err)
			}
		}
	})

	t.Run("unknown class", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		_, err := f.svc.Open(context.Background(), "class-missing", "instructor_1", model.SessionConfig{DurationMin: 45})
		if !errors.Is(err, ErrClassNotFound) {
			t.Fatalf("got %v, want ErrClassNotFound", err)
		}
	})

	t.Run("one open session per class", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		first, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("first Open: %v", err)
		}
		defer f.svc.Close(context.Background(), first.ID)

		_, err = f.svc.Open(context.Background(), "class-1", "instructor_2", model.SessionConfig{DurationMin: 45})
		if !errors.Is(err, ErrSessionConflict) {
			t.Fatalf("second Open: got %v, want ErrSessionConflict", err)
		}

		// Closing the first session frees the class for a new one.
		if err := f.svc.Close(context.Background(), first.ID); err != nil {
			t.Fatalf("Close: %v", err)
		}
		second, err := f.svc.Open(context.Background(), "class-1", "instructor_2", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("reopen after close: %v", err)
		}
		f.svc.Close(context.Background(), second.ID)
	})
}

func TestCloseSession(t *testing.T) {
	t.Parallel()

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		if err := f.svc.Close(context.Background(), session.ID); err != nil {
			t.Fatalf("first Close: %v", err)
		}
		if err := f.svc.Close(context.Background(), session.ID); err != nil {
			t.Fatalf("second Close: %v", err)
		}

		got, err := f.svc.Get(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != model.SessionClosed {
			t.Errorf("status: got %s, want closed", got.Status)
		}
		if got.ClosedAt == nil {
			t.Error("closedAt not stamped")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		err := f.svc.Close(context.Background(), "sess-missing")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("got %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("disarms rotation", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := f.svc.Close(context.Background(), session.ID); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if f.rotator.Armed(session.ID) {
			t.Error("rotator still armed after close")
		}
	})

	t.Run("sweep on close", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, true)
		f.enroll(t, "s-1", "s-2", "s-3")
		session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		// One subject checked in before close.
		scanSvc := NewScanService(f.sessions, f.marks, newFakeBindingCache())
		if _, err := scanSvc.Submit(context.Background(), ScanRequest{
			SessionID: session.ID, Token: session.CurrentToken, SubjectID: "s-1", DeviceFingerprint: "fp-1",
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}

		if err := f.svc.Close(context.Background(), session.ID); err != nil {
			t.Fatalf("Close: %v", err)
		}

		marks, err := f.marks.ListBySession(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("ListBySession: %v", err)
		}
		if len(marks) != 3 {
			t.Fatalf("marks after sweep: got %d, want 3", len(marks))
		}
		for _, mark := range marks {
			if mark.SubjectID == "s-1" {
				if mark.Status != model.MarkPresent {
					t.Errorf("s-1 overwritten by sweep: %s", mark.Status)
				}
			} else if mark.Status != model.MarkAbsent {
				t.Errorf("%s: got %s, want absent", mark.SubjectID, mark.Status)
			}
		}
	})
}

func TestSweepIdempotent(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t, false)
	f.enroll(t, "s-1", "s-2")
	session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.svc.Close(context.Background(), session.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first, err := f.svc.Sweep(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if first != 2 {
		t.Errorf("first sweep created %d marks, want 2", first)
	}

	second, err := f.svc.Sweep(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if second != 0 {
		t.Errorf("second sweep created %d marks, want 0", second)
	}
}

func TestSweepRequiresClosedSession(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t, false)
	f.enroll(t, "s-1", "s-2")
	session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Sweeping a live session would mark every not-yet-scanned subject
	// absent and their real scans would then bounce off the unique index.
	if _, err := f.svc.Sweep(context.Background(), session.ID); !errors.Is(err, ErrSessionNotClosed) {
		t.Fatalf("sweep while open: got %v, want ErrSessionNotClosed", err)
	}
	marks, err := f.marks.ListBySession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(marks) != 0 {
		t.Fatalf("rejected sweep still created %d marks", len(marks))
	}

	// A subject scanning afterwards is recorded present, not blocked.
	scanSvc := NewScanService(f.sessions, f.marks, newFakeBindingCache())
	mark, err := scanSvc.Submit(context.Background(), ScanRequest{
		SessionID: session.ID, Token: session.CurrentToken, SubjectID: "s-1", DeviceFingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if mark.Status != model.MarkPresent {
		t.Errorf("status: got %s, want present", mark.Status)
	}

	if err := f.svc.Close(context.Background(), session.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	created, err := f.svc.Sweep(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Sweep after close: %v", err)
	}
	if created != 1 {
		t.Errorf("sweep after close created %d marks, want 1", created)
	}
}

func TestSetLateMode(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t, false)
	session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Toggling works while open and after close.
	if err := f.svc.SetLateMode(context.Background(), session.ID, true); err != nil {
		t.Fatalf("SetLateMode open: %v", err)
	}
	if err := f.svc.Close(context.Background(), session.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.svc.SetLateMode(context.Background(), session.ID, false); err != nil {
		t.Fatalf("SetLateMode closed: %v", err)
	}

	got, err := f.svc.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Config.LateModeEnabled {
		t.Error("late mode still enabled after toggle off")
	}

	if err := f.svc.SetLateMode(context.Background(), "sess-missing", true); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t, false)
	f.enroll(t, "s-1")
	session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.svc.Close(context.Background(), session.ID)

	if _, err := f.svc.Join(context.Background(), session.ID, "s-1"); err != nil {
		t.Errorf("enrolled subject: %v", err)
	}
	if _, err := f.svc.Join(context.Background(), session.ID, "s-unknown"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("unenrolled subject: got %v, want ErrNotEnrolled", err)
	}
	if _, err := f.svc.Join(context.Background(), "sess-missing", "s-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}
}

func TestCurrentToken(t *testing.T) {
	t.Parallel()

	t.Run("serves committed token and backfills cache", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		session, err := f.svc.Open(context.Background(), "class-1", "instructor_1", model.SessionConfig{DurationMin: 45})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer f.svc.Close(context.Background(), session.ID)

		// Drop the cache entry to force the document path.
		f.tokens.Delete(context.Background(), session.ID)

		snapshot, stalled, err := f.svc.CurrentToken(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("CurrentToken: %v", err)
		}
		if stalled {
			t.Error("fresh token reported as stalled")
		}
		if snapshot.Token != session.CurrentToken {
			t.Errorf("token: got %q, want committed %q", snapshot.Token, session.CurrentToken)
		}
		if snapshot.FallbackCode == "" {
			t.Error("snapshot missing fallback code")
		}
		if cached, _ := f.tokens.Get(context.Background(), session.ID); cached == nil {
			t.Error("cache not backfilled")
		}
	})

	t.Run("reports stalled rotation", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		stale := &model.Session{
			ID:      "sess-stale",
			ClassID: "class-1",
			Status:  model.SessionOpen,
			Config: model.SessionConfig{
				RotationIntervalSec: 30,
				DurationMin:         45,
			},
			CurrentToken:         "tok-old",
			CurrentTokenIssuedAt: time.Now().Add(-5 * time.Minute),
		}
		f.sessions.put(stale)

		_, stalled, err := f.svc.CurrentToken(context.Background(), "sess-stale")
		if err != nil {
			t.Fatalf("CurrentToken: %v", err)
		}
		if !stalled {
			t.Error("stalled rotation not reported")
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t, false)
		_, _, err := f.svc.CurrentToken(context.Background(), "sess-missing")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("got %v, want ErrSessionNotFound", err)
		}
	})
}
