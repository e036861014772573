package metastore

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fee event types, one per protocol action that charges a fee.
const (
	FeeEventPositionOpened     = "POSITION_OPENED"
	FeeEventPositionClosed     = "POSITION_CLOSED"
	FeeEventPositionLiquidated = "POSITION_LIQUIDATED"
	FeeEventLiquidityAdded     = "LIQUIDITY_ADDED"
	FeeEventLiquidityRemoved   = "LIQUIDITY_REMOVED"
	FeeEventBasktCreated       = "BASKT_CREATED"
	FeeEventRebalanceRequested = "REBALANCE_REQUESTED"
)

// FeeEventRecord is append-only; events are inserted once and never updated.
type FeeEventRecord struct {
	ID            string
	EventType     string
	FeeToTreasury *big.Int
	FeeToBlp      *big.Int
	FeeTotal      *big.Int
	Payload       map[string]any
	Tx            string
	Timestamp     time.Time
}

type feeEventDoc struct {
	ID            string               `bson:"_id"`
	EventType     string               `bson:"eventType"`
	FeeToTreasury primitive.Decimal128 `bson:"feeToTreasury"`
	FeeToBlp      primitive.Decimal128 `bson:"feeToBlp"`
	FeeTotal      primitive.Decimal128 `bson:"feeTotal"`
	Payload       map[string]any       `bson:"payload,omitempty"`
	Tx            string               `bson:"tx,omitempty"`
	Timestamp     time.Time            `bson:"timestamp"`
}

func feeEventFromDoc(d feeEventDoc) (FeeEventRecord, error) {
	record := FeeEventRecord{
		ID:        d.ID,
		EventType: d.EventType,
		Payload:   d.Payload,
		Tx:        d.Tx,
		Timestamp: d.Timestamp,
	}
	var err error
	if record.FeeToTreasury, err = bigFromDecimal128(d.FeeToTreasury); err != nil {
		return FeeEventRecord{}, fmt.Errorf("fee event %s feeToTreasury: %w", d.ID, err)
	}
	if record.FeeToBlp, err = bigFromDecimal128(d.FeeToBlp); err != nil {
		return FeeEventRecord{}, fmt.Errorf("fee event %s feeToBlp: %w", d.ID, err)
	}
	if record.FeeTotal, err = bigFromDecimal128(d.FeeTotal); err != nil {
		return FeeEventRecord{}, fmt.Errorf("fee event %s feeTotal: %w", d.ID, err)
	}
	return record, nil
}

// InsertFeeEvent appends one immutable event. A zero ID gets a generated
// UUID; the assigned ID is returned.
func (s *Store) InsertFeeEvent(ctx context.Context, record FeeEventRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	doc := feeEventDoc{
		ID:            record.ID,
		EventType:     record.EventType,
		FeeToTreasury: mustDecimal128(record.FeeToTreasury),
		FeeToBlp:      mustDecimal128(record.FeeToBlp),
		FeeTotal:      mustDecimal128(record.FeeTotal),
		Payload:       record.Payload,
		Tx:            record.Tx,
		Timestamp:     record.Timestamp,
	}
	if _, err := s.collection(collectionFeeEvents).InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert %s %q: %w", collectionFeeEvents, record.ID, err)
	}
	return record.ID, nil
}

func (s *Store) ListFeeEventsSince(ctx context.Context, since time.Time) ([]FeeEventRecord, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gte": since}
	}
	cursor, err := s.collection(collectionFeeEvents).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionFeeEvents, err)
	}
	var docs []feeEventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionFeeEvents, err)
	}
	events := make([]FeeEventRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := feeEventFromDoc(doc)
		if err != nil {
			return nil, err
		}
		events = append(events, record)
	}
	return events, nil
}

// SumFeesToBlpSince aggregates feeToBlp across every event type in the
// window, server-side.
func (s *Store) SumFeesToBlpSince(ctx context.Context, since time.Time) (*big.Int, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"timestamp": bson.M{"$gte": since}}},
		{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$feeToBlp"}}},
	}
	cursor, err := s.collection(collectionFeeEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s feesToBlp: %w", collectionFeeEvents, err)
	}
	var rows []struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s aggregate: %w", collectionFeeEvents, err)
	}
	if len(rows) == 0 {
		return new(big.Int), nil
	}
	total, err := bigFromDecimal128(rows[0].Total)
	if err != nil {
		return nil, fmt.Errorf("feesToBlp total: %w", err)
	}
	return total, nil
}

// FeeTotalsByType holds lifetime sums for one event type.
type FeeTotalsByType struct {
	EventType     string
	Count         int64
	FeeToTreasury *big.Int
	FeeToBlp      *big.Int
	FeeTotal      *big.Int
}

func (s *Store) LifetimeFeeTotals(ctx context.Context) ([]FeeTotalsByType, error) {
	pipeline := []bson.M{
		{"$group": bson.M{
			"_id":           "$eventType",
			"count":         bson.M{"$sum": 1},
			"feeToTreasury": bson.M{"$sum": "$feeToTreasury"},
			"feeToBlp":      bson.M{"$sum": "$feeToBlp"},
			"feeTotal":      bson.M{"$sum": "$feeTotal"},
		}},
		{"$sort": bson.M{"_id": 1}},
	}
	cursor, err := s.collection(collectionFeeEvents).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s totals: %w", collectionFeeEvents, err)
	}
	var rows []struct {
		EventType     string               `bson:"_id"`
		Count         int64                `bson:"count"`
		FeeToTreasury primitive.Decimal128 `bson:"feeToTreasury"`
		FeeToBlp      primitive.Decimal128 `bson:"feeToBlp"`
		FeeTotal      primitive.Decimal128 `bson:"feeTotal"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s totals: %w", collectionFeeEvents, err)
	}
	totals := make([]FeeTotalsByType, 0, len(rows))
	for _, row := range rows {
		entry := FeeTotalsByType{EventType: row.EventType, Count: row.Count}
		var convErr error
		if entry.FeeToTreasury, convErr = bigFromDecimal128(row.FeeToTreasury); convErr != nil {
			return nil, fmt.Errorf("totals %s feeToTreasury: %w", row.EventType, convErr)
		}
		if entry.FeeToBlp, convErr = bigFromDecimal128(row.FeeToBlp); convErr != nil {
			return nil, fmt.Errorf("totals %s feeToBlp: %w", row.EventType, convErr)
		}
		if entry.FeeTotal, convErr = bigFromDecimal128(row.FeeTotal); convErr != nil {
			return nil, fmt.Errorf("totals %s feeTotal: %w", row.EventType, convErr)
		}
		totals = append(totals, entry)
	}
	return totals, nil
}
