package metastore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BasktAllocationRecord mirrors one on-chain allocation row at the time of
// the last resync. Weight is basis points; BaselinePrice is 1e6-scaled.
type BasktAllocationRecord struct {
	AssetAddress  string
	IsLong        bool
	WeightBps     uint64
	BaselinePrice *big.Int
}

// BasktRecord combines off-chain display fields with the most recently
// persisted ledger snapshot. The snapshot fields (Status, BaselineNav,
// Allocations) are overwritten wholesale on resync.
type BasktRecord struct {
	BasktID     string
	Name        string
	Description string
	Creator     string
	Status      string
	BaselineNav *big.Int
	Allocations []BasktAllocationRecord
	SyncedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type basktAllocationDoc struct {
	AssetAddress  string               `bson:"assetAddress"`
	IsLong        bool                 `bson:"isLong"`
	WeightBps     int64                `bson:"weightBps"`
	BaselinePrice primitive.Decimal128 `bson:"baselinePrice"`
}

type basktDoc struct {
	BasktID     string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description,omitempty"`
	Creator     string               `bson:"creator"`
	Status      string               `bson:"status"`
	BaselineNav primitive.Decimal128 `bson:"baselineNav"`
	Allocations []basktAllocationDoc `bson:"allocations"`
	SyncedAt    time.Time            `bson:"syncedAt"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func basktFromDoc(d basktDoc) (BasktRecord, error) {
	baselineNav, err := bigFromDecimal128(d.BaselineNav)
	if err != nil {
		return BasktRecord{}, fmt.Errorf("baskt %s baselineNav: %w", d.BasktID, err)
	}
	allocations := make([]BasktAllocationRecord, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		baselinePrice, err := bigFromDecimal128(a.BaselinePrice)
		if err != nil {
			return BasktRecord{}, fmt.Errorf("baskt %s allocation %s baselinePrice: %w", d.BasktID, a.AssetAddress, err)
		}
		allocations = append(allocations, BasktAllocationRecord{
			AssetAddress:  a.AssetAddress,
			IsLong:        a.IsLong,
			WeightBps:     uint64(a.WeightBps),
			BaselinePrice: baselinePrice,
		})
	}
	return BasktRecord{
		BasktID:     d.BasktID,
		Name:        d.Name,
		Description: d.Description,
		Creator:     d.Creator,
		Status:      d.Status,
		BaselineNav: baselineNav,
		Allocations: allocations,
		SyncedAt:    d.SyncedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func allocationDocs(allocations []BasktAllocationRecord) []basktAllocationDoc {
	docs := make([]basktAllocationDoc, 0, len(allocations))
	for _, a := range allocations {
		docs = append(docs, basktAllocationDoc{
			AssetAddress:  a.AssetAddress,
			IsLong:        a.IsLong,
			WeightBps:     int64(a.WeightBps),
			BaselinePrice: mustDecimal128(a.BaselinePrice),
		})
	}
	return docs
}

func (s *Store) FindBasktByID(ctx context.Context, basktID string) (BasktRecord, error) {
	var doc basktDoc
	err := s.collection(collectionBaskts).FindOne(ctx, bson.M{"_id": basktID}).Decode(&doc)
	if err != nil {
		return BasktRecord{}, mapFindErr(err, collectionBaskts, basktID)
	}
	return basktFromDoc(doc)
}

func (s *Store) ListBaskts(ctx context.Context) ([]BasktRecord, error) {
	cursor, err := s.collection(collectionBaskts).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionBaskts, err)
	}
	var docs []basktDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionBaskts, err)
	}
	baskts := make([]BasktRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := basktFromDoc(doc)
		if err != nil {
			return nil, err
		}
		baskts = append(baskts, record)
	}
	return baskts, nil
}

// UpsertBasktSnapshot persists the ledger snapshot portion of a baskt
// record. Display fields are only written on insert so an operator edit in
// the metadata store is not clobbered by resync.
func (s *Store) UpsertBasktSnapshot(ctx context.Context, record BasktRecord) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"creator":     record.Creator,
			"status":      record.Status,
			"baselineNav": mustDecimal128(record.BaselineNav),
			"allocations": allocationDocs(record.Allocations),
			"syncedAt":    record.SyncedAt,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"name":        record.Name,
			"description": record.Description,
			"createdAt":   now,
		},
	}
	_, err := s.collection(collectionBaskts).UpdateOne(
		ctx,
		bson.M{"_id": record.BasktID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", collectionBaskts, record.BasktID, err)
	}
	return nil
}
