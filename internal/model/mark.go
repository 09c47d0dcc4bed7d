package model

import "time"

type MarkStatus string

const (
	MarkPresent MarkStatus = "present"
	MarkLate    MarkStatus = "late"
	MarkAbsent  MarkStatus = "absent"
	MarkLeave   MarkStatus = "leave"
)

// Valid reports whether the status is one of the recognised outcomes.
func (s MarkStatus) Valid() bool {
	switch s {
	case MarkPresent, MarkLate, MarkAbsent, MarkLeave:
		return true
	}
	return false
}

// Sources for RecordedBy.
const (
	RecordedByScan  = "scan"
	RecordedBySweep = "sweep"
)

// Mark is the durable attendance outcome for one subject in one session.
// At most one mark exists per (sessionId, subjectId); the marks collection
// carries a unique compound index on those two fields.
type Mark struct {
	ID                string     `json:"id" bson:"_id"`
	SessionID         string     `json:"sessionId" bson:"sessionId"`
	ClassID           string     `json:"classId" bson:"classId"`
	SubjectID         string     `json:"subjectId" bson:"subjectId"`
	Status            MarkStatus `json:"status" bson:"status"`
	DeviceFingerprint string     `json:"deviceFingerprint,omitempty" bson:"deviceFingerprint,omitempty"`
	RecordedAt        time.Time  `json:"recordedAt" bson:"recordedAt"`
	RecordedBy        string     `json:"recordedBy" bson:"recordedBy"`

	// Manual correction fields.
	Reason    string     `json:"reason,omitempty" bson:"reason,omitempty"`
	Feedback  string     `json:"feedback,omitempty" bson:"feedback,omitempty"`
	UpdatedBy string     `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// Aggregate is the read-only rollup over marks for a session or class.
type Aggregate struct {
	Present int     `json:"present"`
	Late    int     `json:"late"`
	Absent  int     `json:"absent"`
	Leave   int     `json:"leave"`
	Total   int     `json:"total"`
	Rate    float64 `json:"rate"`
}
