package mongo

import (
	"context"

	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/observability"
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository is the read-only movie catalog. The booking core
// only needs the snapshot fields embedded into order items.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("movies"),
		logger: logger,
	}
}

type MovieDoc struct {
	ID        int64   `bson:"_id"`
	Title     string  `bson:"title"`
	PosterURL string  `bson:"poster_url"`
	Rating    float64 `bson:"rating"`
}

func (c *CatalogRepository) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	var doc MovieDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(domain.ErrNotFound, "movie")
	}
	if err != nil {
		c.logger.Error("failed to get movie", err)
		return nil, err
	}
	return &domain.Movie{
		ID:        doc.ID,
		Title:     doc.Title,
		PosterURL: doc.PosterURL,
		Rating:    doc.Rating,
	}, nil
}

func (c *CatalogRepository) UpsertMovie(ctx context.Context, doc MovieDoc) error {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert movie", err)
	}
	return err
}
