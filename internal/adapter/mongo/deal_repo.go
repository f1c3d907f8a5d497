package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/app/config"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const dealCollectionName = "deals"

type dealRepository struct {
	collection *mongo.Collection
}

// NewDealRepository builds the repo with a unique index on nda_id so a
// single approved NDA can back at most one deal.
func NewDealRepository(ctx context.Context, client *mongo.Client, cfg config.MongoDBConfig) (repository.DealRepository, error) {
	collection := client.Database(cfg.Database).Collection(dealCollectionName)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "nda_id", Value: 1}},
		Options: options.Index().SetName("deal_per_nda").SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("failed to create deal uniqueness index: %w", err)
	}

	return &dealRepository{collection: collection}, nil
}

func (r *dealRepository) Create(ctx context.Context, deal *entity.Deal) (string, error) {
	res, err := r.collection.InsertOne(ctx, fromDealEntity(deal))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", repository.ErrDuplicate
		}
		return "", fmt.Errorf("failed to create deal: %w", err)
	}
	objectID, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("failed to convert inserted ID to ObjectID")
	}
	return objectID.Hex(), nil
}

func (r *dealRepository) GetByID(ctx context.Context, id string) (*entity.Deal, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid deal ID format: %w", repository.ErrNotFound)
	}

	var doc dealDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deal by ID %s: %w", id, err)
	}
	return doc.toEntity(), nil
}

func (r *dealRepository) GetByNDAID(ctx context.Context, ndaID string) (*entity.Deal, error) {
	var doc dealDoc
	err := r.collection.FindOne(ctx, bson.M{"nda_id": ndaID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deal by NDA ID %s: %w", ndaID, err)
	}
	return doc.toEntity(), nil
}

func (r *dealRepository) Update(ctx context.Context, deal *entity.Deal, expectedVersion int) error {
	objID, err := primitive.ObjectIDFromHex(deal.ID)
	if err != nil {
		return fmt.Errorf("invalid deal ID format: %w", repository.ErrUpdateFailed)
	}

	filter := bson.M{"_id": objID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"stage":        deal.Stage,
			"agreed_price": deal.AgreedPrice,
			"milestones":   deal.Milestones,
			"documents":    deal.Documents,
			"payments":     deal.Payments,
			"activity":     deal.Activity,
			"updated_at":   time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update deal %s: %w", deal.ID, err)
	}
	if result.MatchedCount == 0 {
		var existing dealDoc
		errFind := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&existing)
		if errors.Is(errFind, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		if errFind == nil && existing.Version != expectedVersion {
			return repository.ErrOptimisticLock
		}
		return repository.ErrUpdateFailed
	}
	return nil
}

func (r *dealRepository) ListByParty(ctx context.Context, partyID string) ([]entity.Deal, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": partyID}, bson.M{"seller_id": partyID}}}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list deals for party %s: %w", partyID, err)
	}
	defer cursor.Close(ctx)

	var docs []dealDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode deals: %w", err)
	}

	deals := make([]entity.Deal, len(docs))
	for i := range docs {
		deals[i] = *docs[i].toEntity()
	}
	return deals, nil
}
