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

const listingCollectionName = "listings"

type listingRepository struct {
	collection *mongo.Collection
}

func NewListingRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.ListingRepository {
	return &listingRepository{
		collection: client.Database(cfg.Database).Collection(listingCollectionName),
	}
}

func (r *listingRepository) Create(ctx context.Context, listing *entity.Listing) (string, error) {
	res, err := r.collection.InsertOne(ctx, fromListingEntity(listing))
	if err != nil {
		return "", fmt.Errorf("failed to create listing: %w", err)
	}
	objectID, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("failed to convert inserted ID to ObjectID")
	}
	return objectID.Hex(), nil
}

func (r *listingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid listing ID format: %w", repository.ErrNotFound)
	}

	var doc listingDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing by ID %s: %w", id, err)
	}
	return doc.toEntity(), nil
}

func (r *listingRepository) Update(ctx context.Context, listing *entity.Listing, expectedVersion int) error {
	objID, err := primitive.ObjectIDFromHex(listing.ID)
	if err != nil {
		return fmt.Errorf("invalid listing ID format: %w", repository.ErrUpdateFailed)
	}

	filter := bson.M{"_id": objID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"title":         listing.Title,
			"category":      listing.Category,
			"region":        listing.Region,
			"description":   listing.Description,
			"strengths":     listing.Strengths,
			"risks":         listing.Risks,
			"revenue_range": listing.RevenueRange,
			"asking_price":  listing.AskingPrice,
			"employee_band": listing.EmployeeBand,
			"is_brokered":   listing.IsBrokered,
			"is_verified":   listing.IsVerified,
			"contact_email": listing.ContactEmail,
			"status":        listing.Status,
			"gated":         listing.Gated,
			"deleted":       listing.Deleted,
			"published_at":  listing.PublishedAt,
			"updated_at":    time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update listing %s: %w", listing.ID, err)
	}
	if result.MatchedCount == 0 {
		return r.classifyMissedUpdate(ctx, objID, expectedVersion)
	}
	return nil
}

func (r *listingRepository) classifyMissedUpdate(ctx context.Context, objID primitive.ObjectID, expectedVersion int) error {
	var existing listingDoc
	errFind := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&existing)
	if errors.Is(errFind, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if errFind == nil && existing.Version != expectedVersion {
		return repository.ErrOptimisticLock
	}
	return repository.ErrUpdateFailed
}

func (r *listingRepository) SoftDelete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid listing ID format: %w", repository.ErrNotFound)
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to soft-delete listing %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *listingRepository) List(ctx context.Context, filter repository.ListingFilter) (*repository.ListListingsResult, error) {
	query := bson.M{"deleted": false}
	if filter.SellerID != "" {
		query["seller_id"] = filter.SellerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Region != "" {
		query["region"] = filter.Region
	}
	if filter.Query != "" {
		query["$text"] = bson.M{"$search": filter.Query}
	}

	findOptions := options.Find()
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		findOptions.SetSkip(int64((page - 1) * filter.PageSize))
		findOptions.SetLimit(int64(filter.PageSize))
	}
	if filter.SortBy != "" {
		sortOrder := 1
		if filter.SortOrder == "desc" {
			sortOrder = -1
		}
		findOptions.SetSort(bson.D{{Key: filter.SortBy, Value: sortOrder}})
	} else {
		findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})
	}

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []listingDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode listed listings: %w", err)
	}

	totalCount, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	listings := make([]entity.Listing, len(docs))
	for i := range docs {
		listings[i] = *docs[i].toEntity()
	}
	return &repository.ListListingsResult{Listings: listings, TotalCount: totalCount}, nil
}
