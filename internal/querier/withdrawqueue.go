package querier

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/basktfi/backend/internal/metastore"
	"github.com/basktfi/backend/internal/onchain"
)

// WithdrawalStatusFromHistory derives the request status purely from the
// processing history. The stored status field is never trusted on its own:
// COMPLETED iff the cumulative burn covers the requested amount, PROCESSING
// once any entry exists, QUEUED otherwise.
func WithdrawalStatusFromHistory(requestedLp *big.Int, history []metastore.ProcessingEntry) string {
	if len(history) == 0 {
		return metastore.WithdrawalQueued
	}
	if burnedLpTotal(history).Cmp(bigOrZero(requestedLp)) >= 0 {
		return metastore.WithdrawalCompleted
	}
	return metastore.WithdrawalProcessing
}

func burnedLpTotal(history []metastore.ProcessingEntry) *big.Int {
	total := new(big.Int)
	for _, entry := range history {
		total.Add(total, bigOrZero(entry.LpTokensBurned))
	}
	return total
}

// ReconcileQueue walks the ledger queue from tail to head, deriving each
// request address from its sequence number, and reconciles every fetchable
// slot into metadata. Indices whose account no longer exists are skipped,
// not failed: a closed request simply left the queue.
func (q *Querier) ReconcileQueue(ctx context.Context) Response[[]metastore.WithdrawalRequestRecord] {
	pool, err := q.ledger.Pool(ctx)
	if err != nil {
		q.logger.Error("queue reconcile pool fetch failed", "err", err)
		return failErr[[]metastore.WithdrawalRequestRecord](srcLedger, err, "failed to load pool account")
	}

	reconciled := make([]metastore.WithdrawalRequestRecord, 0, pool.WithdrawQueueHead-pool.WithdrawQueueTail)
	for index := pool.WithdrawQueueTail; index < pool.WithdrawQueueHead; index++ {
		account, err := q.ledger.WithdrawRequestAt(ctx, index)
		if err != nil {
			if errors.Is(err, onchain.ErrAccountNotFound) {
				continue
			}
			q.logger.Warn("queue slot fetch failed, skipping", "index", index, "err", err)
			continue
		}

		record, err := q.reconcileRequest(ctx, account)
		if err != nil {
			q.logger.Error("queue slot reconcile failed", "index", index, "err", err)
			return failErr[[]metastore.WithdrawalRequestRecord](srcMeta, err, "failed to reconcile withdrawal request")
		}
		reconciled = append(reconciled, record)
	}
	return ok(reconciled)
}

// reconcileRequest merges one ledger request into metadata. The metadata
// processing history is authoritative for status when it exists; a request
// the store has never seen derives its state from the ledger's processed
// counter.
func (q *Querier) reconcileRequest(ctx context.Context, account *onchain.WithdrawRequestAccount) (metastore.WithdrawalRequestRecord, error) {
	requested := new(big.Int).SetUint64(account.LpAmount)

	existing, err := q.meta.FindWithdrawalByRequestID(ctx, account.RequestId)
	switch {
	case err == nil:
		remaining := new(big.Int).Sub(requested, burnedLpTotal(existing.ProcessingHistory))
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		record := existing
		record.Provider = account.Provider.String()
		record.RequestedLp = requested
		record.RemainingLp = remaining
		record.Status = WithdrawalStatusFromHistory(requested, existing.ProcessingHistory)
		if err := q.meta.UpsertWithdrawal(ctx, record); err != nil {
			return metastore.WithdrawalRequestRecord{}, err
		}
		return record, nil

	case errors.Is(err, metastore.ErrNotFound):
		remaining := new(big.Int).Sub(requested, new(big.Int).SetUint64(account.ProcessedLp))
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
		status := metastore.WithdrawalQueued
		if account.ProcessedLp >= account.LpAmount {
			status = metastore.WithdrawalCompleted
		} else if account.ProcessedLp > 0 {
			status = metastore.WithdrawalProcessing
		}
		record := metastore.WithdrawalRequestRecord{
			RequestID:   account.RequestId,
			Provider:    account.Provider.String(),
			RequestedLp: requested,
			RemainingLp: remaining,
			Status:      status,
			CreatedAt:   time.Unix(account.CreatedAt, 0).UTC(),
		}
		if err := q.meta.UpsertWithdrawal(ctx, record); err != nil {
			return metastore.WithdrawalRequestRecord{}, err
		}
		return record, nil

	default:
		return metastore.WithdrawalRequestRecord{}, err
	}
}

// GetQueue returns the persisted queue view, ordered by sequence number.
func (q *Querier) GetQueue(ctx context.Context) Response[[]metastore.WithdrawalRequestRecord] {
	requests, err := q.meta.ListWithdrawals(ctx)
	if err != nil {
		q.logger.Error("queue listing failed", "err", err)
		return failErr[[]metastore.WithdrawalRequestRecord](srcMeta, err, "failed to list withdrawal requests")
	}
	return ok(requests)
}

// GetUserRequest scans the live queue tail to head and returns the first
// request belonging to the provider. Linear by construction; queue depth is
// bounded by upstream rate limiting.
func (q *Querier) GetUserRequest(ctx context.Context, provider string) Response[metastore.WithdrawalRequestRecord] {
	pool, err := q.ledger.Pool(ctx)
	if err != nil {
		q.logger.Error("queue scan pool fetch failed", "err", err)
		return failErr[metastore.WithdrawalRequestRecord](srcLedger, err, "failed to load pool account")
	}

	for index := pool.WithdrawQueueTail; index < pool.WithdrawQueueHead; index++ {
		account, err := q.ledger.WithdrawRequestAt(ctx, index)
		if err != nil {
			if errors.Is(err, onchain.ErrAccountNotFound) {
				continue
			}
			q.logger.Warn("queue slot fetch failed, skipping", "index", index, "err", err)
			continue
		}
		if account.Provider.String() != provider {
			continue
		}
		record, err := q.reconcileRequest(ctx, account)
		if err != nil {
			q.logger.Error("queue slot reconcile failed", "index", index, "err", err)
			return failErr[metastore.WithdrawalRequestRecord](srcMeta, err, "failed to reconcile withdrawal request")
		}
		return ok(record)
	}
	return notFound[metastore.WithdrawalRequestRecord]("no queued withdrawal for provider")
}

// RecordProcessing appends one partial-burn entry and recomputes remaining
// amount and status from the full history including the new entry. The
// append and the derived fields land in one atomic document update, and the
// recomputation is idempotent: re-reading the history always yields the same
// status.
func (q *Querier) RecordProcessing(ctx context.Context, requestID uint64, entry metastore.ProcessingEntry) Response[metastore.WithdrawalRequestRecord] {
	record, err := q.meta.FindWithdrawalByRequestID(ctx, requestID)
	if err != nil {
		q.logger.Error("withdrawal lookup failed", "request", requestID, "err", err)
		return failErr[metastore.WithdrawalRequestRecord](srcMeta, err, "withdrawal request not found")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = q.now().UTC()
	}
	history := append(append([]metastore.ProcessingEntry{}, record.ProcessingHistory...), entry)
	burned := burnedLpTotal(history)
	remaining := new(big.Int).Sub(bigOrZero(record.RequestedLp), burned)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	status := WithdrawalStatusFromHistory(record.RequestedLp, history)

	if err := q.meta.AppendWithdrawalProcessing(ctx, requestID, entry, remaining, status); err != nil {
		q.logger.Error("processing append failed", "request", requestID, "err", err)
		return failErr[metastore.WithdrawalRequestRecord](srcMeta, err, "failed to record processing")
	}

	record.ProcessingHistory = history
	record.RemainingLp = remaining
	record.Status = status
	return ok(record)
}
