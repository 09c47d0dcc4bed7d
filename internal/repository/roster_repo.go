package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rollcall/internal/model"
)

// RosterRepo is the class/enrollment registry. The attendance core only
// reads from it; seeding and management belong to the surrounding system.
type RosterRepo interface {
	GetClass(ctx context.Context, classID string) (*model.Class, error)
	ListSubjects(ctx context.Context, classID string) ([]string, error)
	IsEnrolled(ctx context.Context, classID, subjectID string) (bool, error)

	AddClass(ctx context.Context, class *model.Class) error
	Enroll(ctx context.Context, enrollment *model.Enrollment) error
}

type rosterRepo struct {
	classes     *mongo.Collection
	enrollments *mongo.Collection
}

func NewRosterRepo(db *mongo.Database) RosterRepo {
	return &rosterRepo{
		classes:     db.Collection("classes"),
		enrollments: db.Collection("enrollments"),
	}
}

func (r *rosterRepo) GetClass(ctx context.Context, classID string) (*model.Class, error) {
	var class model.Class
	err := r.classes.FindOne(ctx, bson.M{"_id": classID}).Decode(&class)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &class, nil
}

func (r *rosterRepo) ListSubjects(ctx context.Context, classID string) ([]string, error) {
	cursor, err := r.enrollments.Find(ctx, bson.M{"classId": classID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var enrollments []model.Enrollment
	if err = cursor.All(ctx, &enrollments); err != nil {
		return nil, err
	}

	subjects := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		subjects = append(subjects, e.SubjectID)
	}
	return subjects, nil
}

func (r *rosterRepo) IsEnrolled(ctx context.Context, classID, subjectID string) (bool, error) {
	err := r.enrollments.FindOne(ctx, bson.M{"classId": classID, "subjectId": subjectID}).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *rosterRepo) AddClass(ctx context.Context, class *model.Class) error {
	_, err := r.classes.InsertOne(ctx, class)
	return err
}

func (r *rosterRepo) Enroll(ctx context.Context, enrollment *model.Enrollment) error {
	_, err := r.enrollments.InsertOne(ctx, enrollment)
	return err
}
