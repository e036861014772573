package metastore

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderRecord is the off-chain view of one order PDA. Older records persisted
// before the size migration carry Size == 0 with only Collateral and
// LimitPrice populated; callers reconstruct size from those.
type OrderRecord struct {
	OrderPDA   string
	BasktID    string
	Owner      string
	Status     string
	Action     string
	OrderType  string
	IsLong     bool
	Size       *big.Int
	Collateral *big.Int
	LimitPrice *big.Int
	UsdcSize   *big.Int
	CreatedTx  string
	CreatedAt  time.Time
	FilledTx   string
	FilledAt   time.Time
	CanceledTx string
	CanceledAt time.Time
}

type orderDoc struct {
	OrderPDA   string               `bson:"_id"`
	BasktID    string               `bson:"basktId"`
	Owner      string               `bson:"owner"`
	Status     string               `bson:"status"`
	Action     string               `bson:"action"`
	OrderType  string               `bson:"orderType"`
	IsLong     bool                 `bson:"isLong"`
	Size       primitive.Decimal128 `bson:"size"`
	Collateral primitive.Decimal128 `bson:"collateral"`
	LimitPrice primitive.Decimal128 `bson:"limitPrice"`
	UsdcSize   primitive.Decimal128 `bson:"usdcSize"`
	CreatedTx  string               `bson:"createdTx,omitempty"`
	CreatedAt  time.Time            `bson:"createdAt"`
	FilledTx   string               `bson:"filledTx,omitempty"`
	FilledAt   time.Time            `bson:"filledAt,omitempty"`
	CanceledTx string               `bson:"canceledTx,omitempty"`
	CanceledAt time.Time            `bson:"canceledAt,omitempty"`
}

// NormalizeOrderPDA lower-cases a PDA so lookups and joins are
// case-insensitive. Applied on every write and every query.
func NormalizeOrderPDA(pda string) string {
	return strings.ToLower(strings.TrimSpace(pda))
}

func orderFromDoc(d orderDoc) (OrderRecord, error) {
	record := OrderRecord{
		OrderPDA:   d.OrderPDA,
		BasktID:    d.BasktID,
		Owner:      d.Owner,
		Status:     d.Status,
		Action:     d.Action,
		OrderType:  d.OrderType,
		IsLong:     d.IsLong,
		CreatedTx:  d.CreatedTx,
		CreatedAt:  d.CreatedAt,
		FilledTx:   d.FilledTx,
		FilledAt:   d.FilledAt,
		CanceledTx: d.CanceledTx,
		CanceledAt: d.CanceledAt,
	}
	var err error
	if record.Size, err = bigFromDecimal128(d.Size); err != nil {
		return OrderRecord{}, fmt.Errorf("order %s size: %w", d.OrderPDA, err)
	}
	if record.Collateral, err = bigFromDecimal128(d.Collateral); err != nil {
		return OrderRecord{}, fmt.Errorf("order %s collateral: %w", d.OrderPDA, err)
	}
	if record.LimitPrice, err = bigFromDecimal128(d.LimitPrice); err != nil {
		return OrderRecord{}, fmt.Errorf("order %s limitPrice: %w", d.OrderPDA, err)
	}
	if record.UsdcSize, err = bigFromDecimal128(d.UsdcSize); err != nil {
		return OrderRecord{}, fmt.Errorf("order %s usdcSize: %w", d.OrderPDA, err)
	}
	return record, nil
}

func (s *Store) FindOrderByPDA(ctx context.Context, orderPDA string) (OrderRecord, error) {
	key := NormalizeOrderPDA(orderPDA)
	var doc orderDoc
	err := s.collection(collectionOrders).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		return OrderRecord{}, mapFindErr(err, collectionOrders, key)
	}
	return orderFromDoc(doc)
}

func (s *Store) ListOrdersByOwner(ctx context.Context, owner string) ([]OrderRecord, error) {
	return s.listOrders(ctx, bson.M{"owner": owner})
}

func (s *Store) ListOrdersByBaskt(ctx context.Context, basktID string) ([]OrderRecord, error) {
	return s.listOrders(ctx, bson.M{"basktId": basktID})
}

func (s *Store) listOrders(ctx context.Context, filter bson.M) ([]OrderRecord, error) {
	cursor, err := s.collection(collectionOrders).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionOrders, err)
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionOrders, err)
	}
	orders := make([]OrderRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := orderFromDoc(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, record)
	}
	return orders, nil
}

func (s *Store) UpsertOrder(ctx context.Context, record OrderRecord) error {
	key := NormalizeOrderPDA(record.OrderPDA)
	set := bson.M{
		"basktId":    record.BasktID,
		"owner":      record.Owner,
		"status":     record.Status,
		"action":     record.Action,
		"orderType":  record.OrderType,
		"isLong":     record.IsLong,
		"size":       mustDecimal128(record.Size),
		"collateral": mustDecimal128(record.Collateral),
		"limitPrice": mustDecimal128(record.LimitPrice),
		"usdcSize":   mustDecimal128(record.UsdcSize),
	}
	if record.CreatedTx != "" {
		set["createdTx"] = record.CreatedTx
	}
	if record.FilledTx != "" {
		set["filledTx"] = record.FilledTx
		set["filledAt"] = record.FilledAt
	}
	if record.CanceledTx != "" {
		set["canceledTx"] = record.CanceledTx
		set["canceledAt"] = record.CanceledAt
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}
	_, err := s.collection(collectionOrders).UpdateOne(
		ctx,
		bson.M{"_id": key},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", collectionOrders, key, err)
	}
	return nil
}
