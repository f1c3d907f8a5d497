package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/chgenberg/bolaxo-sub002/internal/app/config"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const profileCollectionName = "match_profiles"

// matchProfileRepository reads the buyer-profile collection maintained
// by the profile service. Keyed by buyer ID, not ObjectID.
type matchProfileRepository struct {
	collection *mongo.Collection
}

func NewMatchProfileRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.MatchProfileRepository {
	return &matchProfileRepository{
		collection: client.Database(cfg.Database).Collection(profileCollectionName),
	}
}

func (r *matchProfileRepository) GetByBuyerID(ctx context.Context, buyerID string) (*entity.MatchProfile, error) {
	var profile entity.MatchProfile
	err := r.collection.FindOne(ctx, bson.M{"_id": buyerID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match profile for buyer %s: %w", buyerID, err)
	}
	return &profile, nil
}
