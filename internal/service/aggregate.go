package service

import (
	"context"
	"fmt"

	"rollcall/internal/model"
	"rollcall/internal/repository"
)

// AggregateService rolls marks up into per-session and per-class counts and
// rates. Pure projection over the mark store; safe to recompute any time.
type AggregateService struct {
	sessions repository.SessionRepo
	marks    repository.MarkRepo
}

// NewAggregateService creates a new aggregate service
func NewAggregateService(sessions repository.SessionRepo, marks repository.MarkRepo) *AggregateService {
	return &AggregateService{
		sessions: sessions,
		marks:    marks,
	}
}

// Session computes the rollup for one session. With combined set, late
// counts toward the attendance rate; otherwise rate is present/total.
func (s *AggregateService) Session(ctx context.Context, sessionID string, combined bool) (*model.Aggregate, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	counts, err := s.marks.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count marks: %w", err)
	}
	return rollup(counts, combined), nil
}

// Class computes the rollup across every session of a class.
func (s *AggregateService) Class(ctx context.Context, classID string, combined bool) (*model.Aggregate, error) {
	counts, err := s.marks.CountByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to count marks: %w", err)
	}
	return rollup(counts, combined), nil
}

func rollup(counts map[model.MarkStatus]int, combined bool) *model.Aggregate {
	agg := &model.Aggregate{
		Present: counts[model.MarkPresent],
		Late:    counts[model.MarkLate],
		Absent:  counts[model.MarkAbsent],
		Leave:   counts[model.MarkLeave],
	}
	agg.Total = agg.Present + agg.Late + agg.Absent + agg.Leave
	if agg.Total > 0 {
		attending := agg.Present
		if combined {
			attending += agg.Late
		}
		agg.Rate = float64(attending) / float64(agg.Total)
	}
	return agg
}
