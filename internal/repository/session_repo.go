package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollcall/internal/model"
)

type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetOpenByClass(ctx context.Context, classID string) (*model.Session, error)
	ListByClass(ctx context.Context, classID string) ([]*model.Session, error)

	// CommitToken atomically shifts currentToken into previousToken and
	// installs the new token, but only while the session is still open.
	// It returns the updated session, or nil if the session was not open.
	CommitToken(ctx context.Context, id, token string, issuedAt time.Time) (*model.Session, error)

	// Close transitions an open session to closed. It returns true when the
	// transition happened and false when the session was already closed or
	// does not exist.
	Close(ctx context.Context, id string, closedAt time.Time) (bool, error)

	// SetLateMode flips the late-mode flag in either state. It returns false
	// when the session does not exist.
	SetLateMode(ctx context.Context, id string, enabled bool) (bool, error)

	EnsureIndexes(ctx context.Context) error
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
	}
}

func (r *sessionRepo) EnsureIndexes(ctx context.Context) error {
	// One open session per class, enforced by a partial unique index so that
	// closed sessions never collide.
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "classId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": model.SessionOpen}),
	})
	return err
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateOpenSession
		}
		return err
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Session not found
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetOpenByClass(ctx context.Context, classID string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"classId": classID, "status": model.SessionOpen}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ListByClass(ctx context.Context, classID string) ([]*model.Session, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"classId": classID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) CommitToken(ctx context.Context, id, token string, issuedAt time.Time) (*model.Session, error) {
	// Pipeline update so previousToken takes the pre-update currentToken in
	// the same atomic write. The status filter makes a commit racing with
	// close a no-op.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"previousToken":        "$currentToken",
			"currentToken":         token,
			"currentTokenIssuedAt": issuedAt,
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.Session
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.SessionOpen},
		update, opts,
	).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Closed or gone; the rotation is discarded.
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.SessionOpen},
		bson.M{"$set": bson.M{"status": model.SessionClosed, "closedAt": closedAt}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

func (r *sessionRepo) SetLateMode(ctx context.Context, id string, enabled bool) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"config.lateModeEnabled": enabled}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}
