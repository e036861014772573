package metastore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WalletRecord registers a wallet address, optionally bound to the access
// code it redeemed.
type WalletRecord struct {
	Address    string
	AccessCode string
	CreatedAt  time.Time
}

type walletDoc struct {
	Address    string    `bson:"_id"`
	AccessCode string    `bson:"accessCode,omitempty"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func (s *Store) FindWallet(ctx context.Context, address string) (WalletRecord, error) {
	var doc walletDoc
	err := s.collection(collectionWallets).FindOne(ctx, bson.M{"_id": address}).Decode(&doc)
	if err != nil {
		return WalletRecord{}, mapFindErr(err, collectionWallets, address)
	}
	return WalletRecord{Address: doc.Address, AccessCode: doc.AccessCode, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) CreateWallet(ctx context.Context, record WalletRecord) error {
	doc := walletDoc{
		Address:    record.Address,
		AccessCode: record.AccessCode,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.collection(collectionWallets).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert %s %q: %w", collectionWallets, record.Address, err)
	}
	return nil
}

// AccessCodeRecord gates wallet registration during closed access phases.
type AccessCodeRecord struct {
	Code      string
	CreatedBy string
	MaxUses   int64
	Uses      int64
	CreatedAt time.Time
}

type accessCodeDoc struct {
	Code      string    `bson:"_id"`
	CreatedBy string    `bson:"createdBy,omitempty"`
	MaxUses   int64     `bson:"maxUses"`
	Uses      int64     `bson:"uses"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (s *Store) FindAccessCode(ctx context.Context, code string) (AccessCodeRecord, error) {
	var doc accessCodeDoc
	err := s.collection(collectionAccessCodes).FindOne(ctx, bson.M{"_id": code}).Decode(&doc)
	if err != nil {
		return AccessCodeRecord{}, mapFindErr(err, collectionAccessCodes, code)
	}
	return AccessCodeRecord{
		Code:      doc.Code,
		CreatedBy: doc.CreatedBy,
		MaxUses:   doc.MaxUses,
		Uses:      doc.Uses,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *Store) CreateAccessCode(ctx context.Context, record AccessCodeRecord) error {
	doc := accessCodeDoc{
		Code:      record.Code,
		CreatedBy: record.CreatedBy,
		MaxUses:   record.MaxUses,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.collection(collectionAccessCodes).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s %q: %w", collectionAccessCodes, record.Code, err)
	}
	return nil
}

// RedeemAccessCode atomically increments the use counter, refusing codes
// that are unknown or exhausted.
func (s *Store) RedeemAccessCode(ctx context.Context, code string) error {
	filter := bson.M{
		"_id":  code,
		"$expr": bson.M{"$lt": bson.A{"$uses", "$maxUses"}},
	}
	result, err := s.collection(collectionAccessCodes).UpdateOne(
		ctx,
		filter,
		bson.M{"$inc": bson.M{"uses": 1}},
		options.Update(),
	)
	if err != nil {
		return fmt.Errorf("redeem %s %q: %w", collectionAccessCodes, code, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %q: %w", collectionAccessCodes, code, ErrNotFound)
	}
	return nil
}
