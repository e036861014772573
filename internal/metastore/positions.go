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

// SettlementRecord is one immutable partial-close entry. It references the
// closing order and freezes the settlement breakdown at execution time.
type SettlementRecord struct {
	OrderPDA   string
	SizeClosed *big.Int
	ExitPrice  *big.Int
	Pnl        *big.Int
	Fees       *big.Int
	Payout     *big.Int
	Tx         string
	Timestamp  time.Time
}

type PositionRecord struct {
	PositionPDA         string
	BasktID             string
	Owner               string
	Status              string
	IsLong              bool
	EntryPrice          *big.Int
	ExitPrice           *big.Int
	Size                *big.Int
	RemainingSize       *big.Int
	Collateral          *big.Int
	RemainingCollateral *big.Int
	UsdcSize            *big.Int
	PartialCloses       []SettlementRecord
	OpenedTx            string
	OpenedAt            time.Time
	ClosedTx            string
	ClosedAt            time.Time
}

type settlementDoc struct {
	OrderPDA   string               `bson:"orderPda"`
	SizeClosed primitive.Decimal128 `bson:"sizeClosed"`
	ExitPrice  primitive.Decimal128 `bson:"exitPrice"`
	Pnl        primitive.Decimal128 `bson:"pnl"`
	Fees       primitive.Decimal128 `bson:"fees"`
	Payout     primitive.Decimal128 `bson:"payout"`
	Tx         string               `bson:"tx"`
	Timestamp  time.Time            `bson:"timestamp"`
}

type positionDoc struct {
	PositionPDA         string               `bson:"_id"`
	BasktID             string               `bson:"basktId"`
	Owner               string               `bson:"owner"`
	Status              string               `bson:"status"`
	IsLong              bool                 `bson:"isLong"`
	EntryPrice          primitive.Decimal128 `bson:"entryPrice"`
	ExitPrice           primitive.Decimal128 `bson:"exitPrice"`
	Size                primitive.Decimal128 `bson:"size"`
	RemainingSize       primitive.Decimal128 `bson:"remainingSize"`
	Collateral          primitive.Decimal128 `bson:"collateral"`
	RemainingCollateral primitive.Decimal128 `bson:"remainingCollateral"`
	UsdcSize            primitive.Decimal128 `bson:"usdcSize"`
	PartialCloses       []settlementDoc      `bson:"partialCloses"`
	OpenedTx            string               `bson:"openedTx,omitempty"`
	OpenedAt            time.Time            `bson:"openedAt"`
	ClosedTx            string               `bson:"closedTx,omitempty"`
	ClosedAt            time.Time            `bson:"closedAt,omitempty"`
}

func settlementFromDoc(d settlementDoc) (SettlementRecord, error) {
	record := SettlementRecord{
		OrderPDA:  d.OrderPDA,
		Tx:        d.Tx,
		Timestamp: d.Timestamp,
	}
	var err error
	if record.SizeClosed, err = bigFromDecimal128(d.SizeClosed); err != nil {
		return SettlementRecord{}, fmt.Errorf("settlement sizeClosed: %w", err)
	}
	if record.ExitPrice, err = bigFromDecimal128(d.ExitPrice); err != nil {
		return SettlementRecord{}, fmt.Errorf("settlement exitPrice: %w", err)
	}
	if record.Pnl, err = bigFromDecimal128(d.Pnl); err != nil {
		return SettlementRecord{}, fmt.Errorf("settlement pnl: %w", err)
	}
	if record.Fees, err = bigFromDecimal128(d.Fees); err != nil {
		return SettlementRecord{}, fmt.Errorf("settlement fees: %w", err)
	}
	if record.Payout, err = bigFromDecimal128(d.Payout); err != nil {
		return SettlementRecord{}, fmt.Errorf("settlement payout: %w", err)
	}
	return record, nil
}

func settlementToDoc(r SettlementRecord) settlementDoc {
	return settlementDoc{
		OrderPDA:   r.OrderPDA,
		SizeClosed: mustDecimal128(r.SizeClosed),
		ExitPrice:  mustDecimal128(r.ExitPrice),
		Pnl:        mustDecimal128(r.Pnl),
		Fees:       mustDecimal128(r.Fees),
		Payout:     mustDecimal128(r.Payout),
		Tx:         r.Tx,
		Timestamp:  r.Timestamp,
	}
}

func positionFromDoc(d positionDoc) (PositionRecord, error) {
	record := PositionRecord{
		PositionPDA: d.PositionPDA,
		BasktID:     d.BasktID,
		Owner:       d.Owner,
		Status:      d.Status,
		IsLong:      d.IsLong,
		OpenedTx:    d.OpenedTx,
		OpenedAt:    d.OpenedAt,
		ClosedTx:    d.ClosedTx,
		ClosedAt:    d.ClosedAt,
	}
	var err error
	if record.EntryPrice, err = bigFromDecimal128(d.EntryPrice); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s entryPrice: %w", d.PositionPDA, err)
	}
	if record.ExitPrice, err = bigFromDecimal128(d.ExitPrice); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s exitPrice: %w", d.PositionPDA, err)
	}
	if record.Size, err = bigFromDecimal128(d.Size); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s size: %w", d.PositionPDA, err)
	}
	if record.RemainingSize, err = bigFromDecimal128(d.RemainingSize); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s remainingSize: %w", d.PositionPDA, err)
	}
	if record.Collateral, err = bigFromDecimal128(d.Collateral); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s collateral: %w", d.PositionPDA, err)
	}
	if record.RemainingCollateral, err = bigFromDecimal128(d.RemainingCollateral); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s remainingCollateral: %w", d.PositionPDA, err)
	}
	if record.UsdcSize, err = bigFromDecimal128(d.UsdcSize); err != nil {
		return PositionRecord{}, fmt.Errorf("position %s usdcSize: %w", d.PositionPDA, err)
	}
	record.PartialCloses = make([]SettlementRecord, 0, len(d.PartialCloses))
	for _, entry := range d.PartialCloses {
		settlement, err := settlementFromDoc(entry)
		if err != nil {
			return PositionRecord{}, fmt.Errorf("position %s: %w", d.PositionPDA, err)
		}
		record.PartialCloses = append(record.PartialCloses, settlement)
	}
	return record, nil
}

func (s *Store) FindPositionByPDA(ctx context.Context, positionPDA string) (PositionRecord, error) {
	var doc positionDoc
	err := s.collection(collectionPositions).FindOne(ctx, bson.M{"_id": positionPDA}).Decode(&doc)
	if err != nil {
		return PositionRecord{}, mapFindErr(err, collectionPositions, positionPDA)
	}
	return positionFromDoc(doc)
}

func (s *Store) ListPositionsByOwner(ctx context.Context, owner string) ([]PositionRecord, error) {
	return s.listPositions(ctx, bson.M{"owner": owner})
}

func (s *Store) ListPositionsByBaskt(ctx context.Context, basktID string) ([]PositionRecord, error) {
	return s.listPositions(ctx, bson.M{"basktId": basktID})
}

func (s *Store) ListPositions(ctx context.Context) ([]PositionRecord, error) {
	return s.listPositions(ctx, bson.M{})
}

func (s *Store) listPositions(ctx context.Context, filter bson.M) ([]PositionRecord, error) {
	cursor, err := s.collection(collectionPositions).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionPositions, err)
	}
	var docs []positionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionPositions, err)
	}
	positions := make([]PositionRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := positionFromDoc(doc)
		if err != nil {
			return nil, err
		}
		positions = append(positions, record)
	}
	return positions, nil
}

func (s *Store) UpsertPosition(ctx context.Context, record PositionRecord) error {
	set := bson.M{
		"basktId":             record.BasktID,
		"owner":               record.Owner,
		"status":              record.Status,
		"isLong":              record.IsLong,
		"entryPrice":          mustDecimal128(record.EntryPrice),
		"exitPrice":           mustDecimal128(record.ExitPrice),
		"size":                mustDecimal128(record.Size),
		"remainingSize":       mustDecimal128(record.RemainingSize),
		"collateral":          mustDecimal128(record.Collateral),
		"remainingCollateral": mustDecimal128(record.RemainingCollateral),
		"usdcSize":            mustDecimal128(record.UsdcSize),
	}
	if record.OpenedTx != "" {
		set["openedTx"] = record.OpenedTx
	}
	if record.ClosedTx != "" {
		set["closedTx"] = record.ClosedTx
		set["closedAt"] = record.ClosedAt
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"openedAt":      record.OpenedAt,
			"partialCloses": []settlementDoc{},
		},
	}
	_, err := s.collection(collectionPositions).UpdateOne(
		ctx,
		bson.M{"_id": record.PositionPDA},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", collectionPositions, record.PositionPDA, err)
	}
	return nil
}

// AppendPartialClose pushes one settlement entry and updates the remaining
// size and collateral in the same single-document update, so the history and
// the remaining fields can never be torn apart by a crash.
func (s *Store) AppendPartialClose(
	ctx context.Context,
	positionPDA string,
	settlement SettlementRecord,
	remainingSize, remainingCollateral *big.Int,
	status string,
) error {
	update := bson.M{
		"$push": bson.M{"partialCloses": settlementToDoc(settlement)},
		"$set": bson.M{
			"remainingSize":       mustDecimal128(remainingSize),
			"remainingCollateral": mustDecimal128(remainingCollateral),
			"status":              status,
		},
	}
	result, err := s.collection(collectionPositions).UpdateOne(ctx, bson.M{"_id": positionPDA}, update)
	if err != nil {
		return fmt.Errorf("append partial close %s %q: %w", collectionPositions, positionPDA, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %q: %w", collectionPositions, positionPDA, ErrNotFound)
	}
	return nil
}
