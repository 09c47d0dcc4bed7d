package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/model"
)

var (
	// ErrDuplicateMark is returned when a mark already exists for the
	// (sessionId, subjectId) pair.
	ErrDuplicateMark = errors.New("mark already exists for subject in session")

	// ErrDuplicateOpenSession is returned when a class already has an open
	// session.
	ErrDuplicateOpenSession = errors.New("class already has an open session")
)

type MarkRepo interface {
	// Insert creates the mark, relying on the unique (sessionId, subjectId)
	// index to resolve concurrent writers: the loser gets ErrDuplicateMark.
	Insert(ctx context.Context, mark *model.Mark) error
	Get(ctx context.Context, sessionID, subjectID string) (*model.Mark, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.Mark, error)

	// Update applies a manual correction to an existing mark. It returns the
	// updated mark, or nil if no mark exists for the pair.
	Update(ctx context.Context, sessionID, subjectID string, correction MarkCorrection) (*model.Mark, error)

	CountBySession(ctx context.Context, sessionID string) (map[model.MarkStatus]int, error)
	CountByClass(ctx context.Context, classID string) (map[model.MarkStatus]int, error)

	EnsureIndexes(ctx context.Context) error
}

// MarkCorrection carries the fields an authorized manual correction may change.
type MarkCorrection struct {
	Status    model.MarkStatus
	Reason    string
	Feedback  string
	UpdatedBy string
	UpdatedAt time.Time
}

type markRepo struct {
	collection *mongo.Collection
}

func NewMarkRepo(db *mongo.Database) MarkRepo {
	return &markRepo{
		collection: db.Collection("marks"),
	}
}

func (r *markRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}, {Key: "subjectId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "classId", Value: 1}},
		},
	})
	return err
}

func (r *markRepo) Insert(ctx context.Context, mark *model.Mark) error {
	if mark.RecordedAt.IsZero() {
		mark.RecordedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, mark)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateMark
		}
		return err
	}
	return nil
}

func (r *markRepo) Get(ctx context.Context, sessionID, subjectID string) (*model.Mark, error) {
	var mark model.Mark
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID, "subjectId": subjectID}).Decode(&mark)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &mark, nil
}

func (r *markRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Mark, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var marks []*model.Mark
	if err = cursor.All(ctx, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

func (r *markRepo) Update(ctx context.Context, sessionID, subjectID string, correction MarkCorrection) (*model.Mark, error) {
	update := bson.M{"$set": bson.M{
		"status":    correction.Status,
		"reason":    correction.Reason,
		"feedback":  correction.Feedback,
		"updatedBy": correction.UpdatedBy,
		"updatedAt": correction.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var mark model.Mark
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"sessionId": sessionID, "subjectId": subjectID},
		update, opts,
	).Decode(&mark)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &mark, nil
}

func (r *markRepo) CountBySession(ctx context.Context, sessionID string) (map[model.MarkStatus]int, error) {
	return r.countByStatus(ctx, bson.M{"sessionId": sessionID})
}

func (r *markRepo) CountByClass(ctx context.Context, classID string) (map[model.MarkStatus]int, error) {
	return r.countByStatus(ctx, bson.M{"classId": classID})
}

func (r *markRepo) countByStatus(ctx context.Context, filter bson.M) (map[model.MarkStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.MarkStatus `bson:"_id"`
		Count  int              `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[model.MarkStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
