package mongo

import (
	"context"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserRepository is the minimal user lookup used to compose order
// responses; profile management lives elsewhere.
type UserRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewUserRepository(db *mongo.Database, logger observability.Logger) *UserRepository {
	return &UserRepository{
		coll:   db.Collection("users"),
		logger: logger,
	}
}

type UserDoc struct {
	ID    int64  `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

func (u *UserRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var doc UserDoc
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(domain.ErrNotFound, "user")
	}
	if err != nil {
		u.logger.Error("failed to get user", err)
		return nil, err
	}
	return &domain.User{ID: doc.ID, Name: doc.Name, Email: doc.Email}, nil
}
