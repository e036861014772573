package metastore

import (
	"fmt"
	"math/big"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Financial integer fields (1e6-scaled sizes, prices, fee amounts) are stored
// as Decimal128 so they survive tooling that rewrites documents, and carried
// as *big.Int in exported records. The conversion is explicit at this
// boundary; nothing else in the codebase touches Decimal128.

func decimal128FromBig(v *big.Int) (primitive.Decimal128, error) {
	if v == nil {
		v = new(big.Int)
	}
	d, err := primitive.ParseDecimal128(v.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode %s as decimal128: %w", v, err)
	}
	return d, nil
}

func bigFromDecimal128(d primitive.Decimal128) (*big.Int, error) {
	s := d.String()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("decimal128 %q is not an integer", s)
	}
	return v, nil
}

func mustDecimal128(v *big.Int) primitive.Decimal128 {
	d, err := decimal128FromBig(v)
	if err != nil {
		// Only reachable for values outside Decimal128's 34-digit range,
		// far beyond any 1e6-scaled u64 quantity this system stores.
		panic(err)
	}
	return d
}
