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

const ndaCollectionName = "nda_requests"

type ndaRepository struct {
	collection *mongo.Collection
}

// NewNDARequestRepository builds the repo and ensures the partial unique
// index that makes "one active request per (listing, buyer)" atomic:
// two racing submits hit the index and exactly one insert wins.
func NewNDARequestRepository(ctx context.Context, client *mongo.Client, cfg config.MongoDBConfig) (repository.NDARequestRepository, error) {
	collection := client.Database(cfg.Database).Collection(ndaCollectionName)

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}},
		Options: options.Index().
			SetName("active_request_per_pair").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": bson.A{string(entity.NDAStatusPending), string(entity.NDAStatusApproved)}},
			}),
	}
	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("failed to create NDA uniqueness index: %w", err)
	}

	return &ndaRepository{collection: collection}, nil
}

func (r *ndaRepository) Create(ctx context.Context, req *entity.NDARequest) (string, error) {
	res, err := r.collection.InsertOne(ctx, fromNDAEntity(req))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", repository.ErrDuplicate
		}
		return "", fmt.Errorf("failed to create NDA request: %w", err)
	}
	objectID, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("failed to convert inserted ID to ObjectID")
	}
	return objectID.Hex(), nil
}

func (r *ndaRepository) GetByID(ctx context.Context, id string) (*entity.NDARequest, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid NDA request ID format: %w", repository.ErrNotFound)
	}

	var doc ndaDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get NDA request by ID %s: %w", id, err)
	}
	return doc.toEntity(), nil
}

func (r *ndaRepository) FindActive(ctx context.Context, listingID, buyerID string) (*entity.NDARequest, error) {
	filter := bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"status":     bson.M{"$in": bson.A{entity.NDAStatusPending, entity.NDAStatusApproved}},
	}

	var doc ndaDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active NDA request for listing %s buyer %s: %w", listingID, buyerID, err)
	}
	return doc.toEntity(), nil
}

func (r *ndaRepository) Update(ctx context.Context, req *entity.NDARequest, expectedVersion int) error {
	objID, err := primitive.ObjectIDFromHex(req.ID)
	if err != nil {
		return fmt.Errorf("invalid NDA request ID format: %w", repository.ErrUpdateFailed)
	}

	filter := bson.M{"_id": objID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"status":           req.Status,
			"rejection_reason": req.RejectionReason,
			"approved_at":      req.ApprovedAt,
			"expires_at":       req.ExpiresAt,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update NDA request %s: %w", req.ID, err)
	}
	if result.MatchedCount == 0 {
		var existing ndaDoc
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

func (r *ndaRepository) ListByListing(ctx context.Context, listingID string) ([]entity.NDARequest, error) {
	return r.list(ctx, bson.M{"listing_id": listingID})
}

func (r *ndaRepository) ListByBuyer(ctx context.Context, buyerID string) ([]entity.NDARequest, error) {
	return r.list(ctx, bson.M{"buyer_id": buyerID})
}

func (r *ndaRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]entity.NDARequest, error) {
	filter := bson.M{
		"status":     bson.M{"$in": bson.A{entity.NDAStatusPending, entity.NDAStatusApproved}},
		"expires_at": bson.M{"$lt": cutoff},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale NDA requests: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ndaDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stale NDA requests: %w", err)
	}
	return docsToEntities(docs), nil
}

func (r *ndaRepository) list(ctx context.Context, filter bson.M) ([]entity.NDARequest, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list NDA requests: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ndaDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode NDA requests: %w", err)
	}
	return docsToEntities(docs), nil
}

func docsToEntities(docs []ndaDoc) []entity.NDARequest {
	requests := make([]entity.NDARequest, len(docs))
	for i := range docs {
		requests[i] = *docs[i].toEntity()
	}
	return requests
}
