package model

// Class is a teaching group owned by the external registry.
type Class struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// Enrollment ties a subject to a class.
type Enrollment struct {
	ClassID   string `json:"classId" bson:"classId"`
	SubjectID string `json:"subjectId" bson:"subjectId"`
	Name      string `json:"name" bson:"name"`
}
