package exchange

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/hyperflow/params"
	"github.com/uhyunpark/hyperflow/pkg/metrics"
)

// defaultBatchSize bounds how many cancels share one action (one nonce,
// one signature).
const defaultBatchSize = 100

// BatchCanceller groups cancel requests into batches and paces them so the
// aggregate request rate stays inside the exchange budget. Cancellation is
// not transactional across batches: batches that succeeded stand even when
// a later batch fails.
type BatchCanceller struct {
	client    *Client
	limiter   *rate.Limiter
	batchSize int
	log       *zap.Logger
}

// Outcome reports one batch's result. Err is nil for batches the exchange
// accepted; the refs of a failed batch are returned for the caller to
// retry.
type Outcome struct {
	Refs []OrderRef
	Err  error
}

func NewBatchCanceller(client *Client, log *zap.Logger) *BatchCanceller {
	if log == nil {
		log = zap.NewNop()
	}
	perSecond := rate.Limit(float64(params.RESTRequestsPerMinute) / 60.0)
	return &BatchCanceller{
		client:    client,
		limiter:   rate.NewLimiter(perSecond, 1),
		batchSize: defaultBatchSize,
		log:       log,
	}
}

// CancelMany cancels the given refs in rate-limited batches. Refs carrying
// a cloid are grouped separately from refs carrying an exchange oid since
// they use different action types. Issues batches sequentially; a context
// cancellation stops before the next batch.
func (b *BatchCanceller) CancelMany(ctx context.Context, refs []OrderRef) []Outcome {
	var byOid, byCloid []OrderRef
	for _, r := range refs {
		if r.Cloid != "" {
			byCloid = append(byCloid, r)
		} else {
			byOid = append(byOid, r)
		}
	}

	var outcomes []Outcome
	outcomes = b.cancelBatches(ctx, byOid, outcomes)
	outcomes = b.cancelBatches(ctx, byCloid, outcomes)
	return outcomes
}

func (b *BatchCanceller) cancelBatches(ctx context.Context, refs []OrderRef, outcomes []Outcome) []Outcome {
	for start := 0; start < len(refs); start += b.batchSize {
		end := min(start+b.batchSize, len(refs))
		batch := refs[start:end]

		if err := b.limiter.Wait(ctx); err != nil {
			outcomes = append(outcomes, Outcome{Refs: batch, Err: err})
			continue
		}

		_, err := b.client.Cancel(ctx, batch)
		if err != nil {
			b.log.Warn("cancel batch failed",
				zap.Int("size", len(batch)),
				zap.Error(err))
			metrics.CancelBatchesTotal.WithLabelValues("error").Inc()
		} else {
			metrics.CancelBatchesTotal.WithLabelValues("ok").Inc()
		}
		outcomes = append(outcomes, Outcome{Refs: batch, Err: err})
	}
	return outcomes
}
