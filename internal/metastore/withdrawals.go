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

// Withdrawal request statuses. Transitions are monotonic:
// QUEUED -> PROCESSING -> COMPLETED.
const (
	WithdrawalQueued     = "QUEUED"
	WithdrawalProcessing = "PROCESSING"
	WithdrawalCompleted  = "COMPLETED"
)

// ProcessingEntry is one immutable partial-burn record.
type ProcessingEntry struct {
	Tx              string
	AmountProcessed *big.Int
	LpTokensBurned  *big.Int
	Timestamp       time.Time
}

// WithdrawalRequestRecord tracks one queue slot. The stored Status field is a
// convenience; readers must treat the processing history as the source of
// truth and recompute status from it.
type WithdrawalRequestRecord struct {
	RequestID         uint64
	Provider          string
	RequestedLp       *big.Int
	RemainingLp       *big.Int
	Status            string
	ProcessingHistory []ProcessingEntry
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type processingEntryDoc struct {
	Tx              string               `bson:"tx"`
	AmountProcessed primitive.Decimal128 `bson:"amountProcessed"`
	LpTokensBurned  primitive.Decimal128 `bson:"lpTokensBurned"`
	Timestamp       time.Time            `bson:"timestamp"`
}

type withdrawalDoc struct {
	RequestID         int64                `bson:"_id"`
	Provider          string               `bson:"provider"`
	RequestedLp       primitive.Decimal128 `bson:"requestedLp"`
	RemainingLp       primitive.Decimal128 `bson:"remainingLp"`
	Status            string               `bson:"status"`
	ProcessingHistory []processingEntryDoc `bson:"processingHistory"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

func withdrawalFromDoc(d withdrawalDoc) (WithdrawalRequestRecord, error) {
	record := WithdrawalRequestRecord{
		RequestID: uint64(d.RequestID),
		Provider:  d.Provider,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	var err error
	if record.RequestedLp, err = bigFromDecimal128(d.RequestedLp); err != nil {
		return WithdrawalRequestRecord{}, fmt.Errorf("withdrawal %d requestedLp: %w", d.RequestID, err)
	}
	if record.RemainingLp, err = bigFromDecimal128(d.RemainingLp); err != nil {
		return WithdrawalRequestRecord{}, fmt.Errorf("withdrawal %d remainingLp: %w", d.RequestID, err)
	}
	record.ProcessingHistory = make([]ProcessingEntry, 0, len(d.ProcessingHistory))
	for _, e := range d.ProcessingHistory {
		entry := ProcessingEntry{Tx: e.Tx, Timestamp: e.Timestamp}
		if entry.AmountProcessed, err = bigFromDecimal128(e.AmountProcessed); err != nil {
			return WithdrawalRequestRecord{}, fmt.Errorf("withdrawal %d amountProcessed: %w", d.RequestID, err)
		}
		if entry.LpTokensBurned, err = bigFromDecimal128(e.LpTokensBurned); err != nil {
			return WithdrawalRequestRecord{}, fmt.Errorf("withdrawal %d lpTokensBurned: %w", d.RequestID, err)
		}
		record.ProcessingHistory = append(record.ProcessingHistory, entry)
	}
	return record, nil
}

func (s *Store) FindWithdrawalByRequestID(ctx context.Context, requestID uint64) (WithdrawalRequestRecord, error) {
	var doc withdrawalDoc
	err := s.collection(collectionWithdrawals).FindOne(ctx, bson.M{"_id": int64(requestID)}).Decode(&doc)
	if err != nil {
		return WithdrawalRequestRecord{}, mapFindErr(err, collectionWithdrawals, fmt.Sprintf("%d", requestID))
	}
	return withdrawalFromDoc(doc)
}

func (s *Store) ListWithdrawals(ctx context.Context) ([]WithdrawalRequestRecord, error) {
	cursor, err := s.collection(collectionWithdrawals).Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collectionWithdrawals, err)
	}
	var docs []withdrawalDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collectionWithdrawals, err)
	}
	requests := make([]WithdrawalRequestRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := withdrawalFromDoc(doc)
		if err != nil {
			return nil, err
		}
		requests = append(requests, record)
	}
	return requests, nil
}

// UpsertWithdrawal reconciles queue metadata against a ledger snapshot. The
// processing history is never touched here; only AppendWithdrawalProcessing
// grows it.
func (s *Store) UpsertWithdrawal(ctx context.Context, record WithdrawalRequestRecord) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"provider":    record.Provider,
			"requestedLp": mustDecimal128(record.RequestedLp),
			"remainingLp": mustDecimal128(record.RemainingLp),
			"status":      record.Status,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"createdAt":         now,
			"processingHistory": []processingEntryDoc{},
		},
	}
	_, err := s.collection(collectionWithdrawals).UpdateOne(
		ctx,
		bson.M{"_id": int64(record.RequestID)},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", collectionWithdrawals, record.RequestID, err)
	}
	return nil
}

// AppendWithdrawalProcessing pushes one partial-burn entry and sets the
// recomputed remaining amount and status in the same single-document update.
// The caller derives both from the full history including this entry.
func (s *Store) AppendWithdrawalProcessing(
	ctx context.Context,
	requestID uint64,
	entry ProcessingEntry,
	remainingLp *big.Int,
	status string,
) error {
	update := bson.M{
		"$push": bson.M{"processingHistory": processingEntryDoc{
			Tx:              entry.Tx,
			AmountProcessed: mustDecimal128(entry.AmountProcessed),
			LpTokensBurned:  mustDecimal128(entry.LpTokensBurned),
			Timestamp:       entry.Timestamp,
		}},
		"$set": bson.M{
			"remainingLp": mustDecimal128(remainingLp),
			"status":      status,
			"updatedAt":   time.Now().UTC(),
		},
	}
	result, err := s.collection(collectionWithdrawals).UpdateOne(ctx, bson.M{"_id": int64(requestID)}, update)
	if err != nil {
		return fmt.Errorf("append processing %s %d: %w", collectionWithdrawals, requestID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %d: %w", collectionWithdrawals, requestID, ErrNotFound)
	}
	return nil
}
