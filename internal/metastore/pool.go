package metastore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PoolRecord mirrors the on-chain liquidity pool at the time of the last
// resync. It has no independent mutation path; resync overwrites it.
type PoolRecord struct {
	PoolKey        string
	LpMint         string
	TotalLiquidity *big.Int
	TotalShares    *big.Int
	FeeBps         uint64
	QueueHead      uint64
	QueueTail      uint64
	SyncedAt       time.Time
}

type poolDoc struct {
	PoolKey        string               `bson:"_id"`
	LpMint         string               `bson:"lpMint"`
	TotalLiquidity primitive.Decimal128 `bson:"totalLiquidity"`
	TotalShares    primitive.Decimal128 `bson:"totalShares"`
	FeeBps         int64                `bson:"feeBps"`
	QueueHead      int64                `bson:"queueHead"`
	QueueTail      int64                `bson:"queueTail"`
	SyncedAt       time.Time            `bson:"syncedAt"`
}

func poolFromDoc(d poolDoc) (PoolRecord, error) {
	record := PoolRecord{
		PoolKey:   d.PoolKey,
		LpMint:    d.LpMint,
		FeeBps:    uint64(d.FeeBps),
		QueueHead: uint64(d.QueueHead),
		QueueTail: uint64(d.QueueTail),
		SyncedAt:  d.SyncedAt,
	}
	var err error
	if record.TotalLiquidity, err = bigFromDecimal128(d.TotalLiquidity); err != nil {
		return PoolRecord{}, fmt.Errorf("pool %s totalLiquidity: %w", d.PoolKey, err)
	}
	if record.TotalShares, err = bigFromDecimal128(d.TotalShares); err != nil {
		return PoolRecord{}, fmt.Errorf("pool %s totalShares: %w", d.PoolKey, err)
	}
	return record, nil
}

func (s *Store) FindPool(ctx context.Context, poolKey string) (PoolRecord, error) {
	var doc poolDoc
	err := s.collection(collectionPool).FindOne(ctx, bson.M{"_id": poolKey}).Decode(&doc)
	if err != nil {
		return PoolRecord{}, mapFindErr(err, collectionPool, poolKey)
	}
	return poolFromDoc(doc)
}

func (s *Store) UpsertPool(ctx context.Context, record PoolRecord) error {
	update := bson.M{
		"$set": bson.M{
			"lpMint":         record.LpMint,
			"totalLiquidity": mustDecimal128(record.TotalLiquidity),
			"totalShares":    mustDecimal128(record.TotalShares),
			"feeBps":         int64(record.FeeBps),
			"queueHead":      int64(record.QueueHead),
			"queueTail":      int64(record.QueueTail),
			"syncedAt":       record.SyncedAt,
		},
	}
	_, err := s.collection(collectionPool).UpdateOne(
		ctx,
		bson.M{"_id": record.PoolKey},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", collectionPool, record.PoolKey, err)
	}
	return nil
}

// Pool activity kinds.
const (
	PoolActivityDeposit  = "DEPOSIT"
	PoolActivityWithdraw = "WITHDRAW"
)

// PoolActivityRecord is one deposit or withdrawal bookkeeping entry,
// append-only like fee events.
type PoolActivityRecord struct {
	ID        string
	Kind      string
	Provider  string
	Amount    *big.Int
	LpTokens  *big.Int
	Tx        string
	Timestamp time.Time
}

type poolActivityDoc struct {
	ID        string               `bson:"_id"`
	Kind      string               `bson:"kind"`
	Provider  string               `bson:"provider"`
	Amount    primitive.Decimal128 `bson:"amount"`
	LpTokens  primitive.Decimal128 `bson:"lpTokens"`
	Tx        string               `bson:"tx,omitempty"`
	Timestamp time.Time            `bson:"timestamp"`
}

func (s *Store) InsertPoolActivity(ctx context.Context, record PoolActivityRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	doc := poolActivityDoc{
		ID:        record.ID,
		Kind:      record.Kind,
		Provider:  record.Provider,
		Amount:    mustDecimal128(record.Amount),
		LpTokens:  mustDecimal128(record.LpTokens),
		Tx:        record.Tx,
		Timestamp: record.Timestamp,
	}
	if _, err := s.collection(collectionPoolActivity).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert %s %q: %w", collectionPoolActivity, record.ID, err)
	}
	return record.ID, nil
}

func (s *Store) ListPoolActivityByProvider(ctx context.Context, provider string) ([]PoolActivityRecord, error) {
	cursor, err := s.collection(collectionPoolActivity).Find(
		ctx,
		bson.M{"provider": provider},
		options.Find().SetSort(bson.M{"timestamp": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionPoolActivity, err)
	}
	var docs []poolActivityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionPoolActivity, err)
	}
	activity := make([]PoolActivityRecord, 0, len(docs))
	for _, doc := range docs {
		record := PoolActivityRecord{
			ID:        doc.ID,
			Kind:      doc.Kind,
			Provider:  doc.Provider,
			Tx:        doc.Tx,
			Timestamp: doc.Timestamp,
		}
		var convErr error
		if record.Amount, convErr = bigFromDecimal128(doc.Amount); convErr != nil {
			return nil, fmt.Errorf("activity %s amount: %w", doc.ID, convErr)
		}
		if record.LpTokens, convErr = bigFromDecimal128(doc.LpTokens); convErr != nil {
			return nil, fmt.Errorf("activity %s lpTokens: %w", doc.ID, convErr)
		}
		activity = append(activity, record)
	}
	return activity, nil
}
