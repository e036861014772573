package metastore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AssetRecord is the off-chain metadata for a listed asset. The on-chain
// account and the live price are joined in elsewhere; this record only owns
// display fields.
type AssetRecord struct {
	Address   string
	Ticker    string
	Name      string
	LogoURL   string
	Config    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type assetDoc struct {
	Address   string            `bson:"_id"`
	Ticker    string            `bson:"ticker"`
	Name      string            `bson:"name"`
	LogoURL   string            `bson:"logoUrl,omitempty"`
	Config    map[string]string `bson:"config,omitempty"`
	CreatedAt time.Time         `bson:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

func assetFromDoc(d assetDoc) AssetRecord {
	return AssetRecord{
		Address:   d.Address,
		Ticker:    d.Ticker,
		Name:      d.Name,
		LogoURL:   d.LogoURL,
		Config:    d.Config,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) FindAssetByAddress(ctx context.Context, address string) (AssetRecord, error) {
	var doc assetDoc
	err := s.collection(collectionAssets).FindOne(ctx, bson.M{"_id": address}).Decode(&doc)
	if err != nil {
		return AssetRecord{}, mapFindErr(err, collectionAssets, address)
	}
	return assetFromDoc(doc), nil
}

func (s *Store) FindAssetByTicker(ctx context.Context, ticker string) (AssetRecord, error) {
	var doc assetDoc
	err := s.collection(collectionAssets).FindOne(ctx, bson.M{"ticker": ticker}).Decode(&doc)
	if err != nil {
		return AssetRecord{}, mapFindErr(err, collectionAssets, ticker)
	}
	return assetFromDoc(doc), nil
}

func (s *Store) ListAssets(ctx context.Context) ([]AssetRecord, error) {
	cursor, err := s.collection(collectionAssets).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionAssets, err)
	}
	var docs []assetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionAssets, err)
	}
	assets := make([]AssetRecord, 0, len(docs))
	for _, doc := range docs {
		assets = append(assets, assetFromDoc(doc))
	}
	return assets, nil
}

// UpsertAsset creates or replaces the display metadata for an address.
// CreatedAt is only written on first insert.
func (s *Store) UpsertAsset(ctx context.Context, record AssetRecord) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"ticker":    record.Ticker,
			"name":      record.Name,
			"logoUrl":   record.LogoURL,
			"config":    record.Config,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.collection(collectionAssets).UpdateOne(
		ctx,
		bson.M{"_id": record.Address},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", collectionAssets, record.Address, err)
	}
	return nil
}
