package querier

import (
	"errors"
	"net/http"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
	"github.com/basktfi/backend/internal/pricestore"
)

// Error codes carried in the public envelope.
const (
	CodeMongoDB   = "MONGODB_ERROR"
	CodeOnchain   = "ONCHAIN_ERROR"
	CodeTimescale = "TIMESCALE_ERROR"
	CodeNotFound  = "NOT_FOUND"
	CodeUnknown   = "UNKNOWN_ERROR"
)

// Response is the envelope every public querier method returns. Failures are
// expressed through Success=false with a stable error code; errors never
// cross this boundary any other way. Data is only meaningful when Success is
// true.
type Response[T any] struct {
	Success    bool   `json:"success"`
	Data       T      `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"-"`
}

func ok[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data, StatusCode: http.StatusOK}
}

func fail[T any](code string, status int, message string) Response[T] {
	return Response[T]{Success: false, Error: code, Message: message, StatusCode: status}
}

func notFound[T any](message string) Response[T] {
	return fail[T](CodeNotFound, http.StatusNotFound, message)
}

// source identifies which backing store produced an error, for code mapping.
type source int

const (
	srcMeta source = iota
	srcLedger
	srcPrices
)

func (s source) code() string {
	switch s {
	case srcMeta:
		return CodeMongoDB
	case srcLedger:
		return CodeOnchain
	case srcPrices:
		return CodeTimescale
	default:
		return CodeUnknown
	}
}

// failErr translates a store error into the envelope. Absence sentinels from
// any source map to NOT_FOUND; everything else keeps the source's code. The
// sanitized message is what callers see; the root cause is logged at the
// catch site, not here.
func failErr[T any](src source, err error, message string) Response[T] {
	if isAbsence(err) {
		return notFound[T](message)
	}
	return fail[T](src.code(), http.StatusInternalServerError, message)
}

func isAbsence(err error) bool {
	return errors.Is(err, metastore.ErrNotFound) ||
		errors.Is(err, onchain.ErrAccountNotFound) ||
		errors.Is(err, pricestore.ErrNoSample)
}
