package txqueue

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue/core"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// TxQueueImpl is the single consumer of one chain's durable transaction
// queue. It owns the chain's nonce progression: submissions are strictly
// FIFO and at most one is in flight.
type TxQueueImpl struct {
	config    core.QueueConfig
	store     relayerstore.Store
	submitter core.Submitter
	bus       *relayerevents.Bus
	logger    hclog.Logger
}

var _ core.TxQueue = (*TxQueueImpl)(nil)

func NewTxQueue(
	config core.QueueConfig, store relayerstore.Store, submitter core.Submitter,
	bus *relayerevents.Bus, logger hclog.Logger,
) *TxQueueImpl {
	config.ApplyDefaults()

	return &TxQueueImpl{
		config:    config,
		store:     store,
		submitter: submitter,
		bus:       bus,
		logger:    logger.Named("tx_queue").With("chain", config.ChainID.String()),
	}
}

func (q *TxQueueImpl) Enqueue(item *relayerstore.TxQueueItem) (string, bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	item.ChainID = q.config.ChainID
	item.State = relayerstore.TxStatePending

	inserted, err := q.store.EnqueueTx(item)
	if err != nil {
		return "", false, fmt.Errorf("failed to enqueue tx: %w", err)
	}

	if !inserted {
		q.logger.Debug("duplicate submission collapsed", "dedup_key", fmt.Sprintf("%x", item.DedupKey))

		return item.ID, false, nil
	}

	q.logger.Info("transaction enqueued", "id", item.ID, "kind", item.Kind.String())

	return item.ID, true, nil
}

func (q *TxQueueImpl) Start(ctx context.Context) error {
	q.logger.Debug("tx queue consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		item, err := q.store.OldestActiveTx(q.config.ChainID)
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		if item == nil {
			q.sleep(ctx, q.config.PollingInterval)

			continue
		}

		switch item.State {
		case relayerstore.TxStatePending:
			q.processPending(ctx, item)
		case relayerstore.TxStateSubmitted:
			// observed after restart; resume waiting on the known hash
			q.awaitFinalization(ctx, item)
		default:
		}
	}
}

func (q *TxQueueImpl) processPending(ctx context.Context, item *relayerstore.TxQueueItem) {
	if wait := time.Until(item.NextAttemptAt); wait > 0 {
		if wait > q.config.MaxSleepInterval {
			wait = q.config.MaxSleepInterval
		}

		q.sleep(ctx, wait)

		return
	}

	gasPrice, err := q.resolveGasPrice(ctx, item)
	if err != nil {
		q.reschedule(ctx, item, err)

		return
	}

	if item.GasLimit == 0 {
		gasLimit, err := q.submitter.EstimateGas(ctx, item)
		if err != nil {
			if common.IsRetryableError(err) {
				q.reschedule(ctx, item, err)
			} else {
				q.fail(item, err)
			}

			return
		}

		item.GasLimit = gasLimit
	}

	hash, err := q.submitter.Submit(ctx, item, gasPrice)
	if err != nil {
		if common.IsContextDoneErr(err) {
			return
		}

		if common.IsRetryableError(err) {
			q.reschedule(ctx, item, err)
		} else {
			q.fail(item, err)
		}

		return
	}

	item.State = relayerstore.TxStateSubmitted
	item.TxHash = hash
	item.SubmittedAt = time.Now().UTC()
	item.LastGasPrice = gasPrice.Bytes()

	if err := q.store.UpdateTx(item); err != nil {
		q.logger.Error("failed to persist submitted state", "id", item.ID, "err", err)

		return
	}

	q.logger.Info("transaction submitted", "id", item.ID, "hash", hash, "gas_price", gasPrice)
	telemetry.UpdateTxSubmittedCounter(item.ChainID.String(), 1)
	q.publish(item, false)

	q.awaitFinalization(ctx, item)
}

func (q *TxQueueImpl) awaitFinalization(ctx context.Context, item *relayerstore.TxQueueItem) {
	waitCtx, cancel := context.WithTimeout(ctx, q.config.FinalizationTimeout())
	defer cancel()

	err := q.submitter.WaitFinalized(waitCtx, item.TxHash)
	if err != nil {
		if ctx.Err() != nil {
			// shutdown preempted us; the next startup re-observes the
			// in-flight submission by hash
			return
		}

		if !common.IsRetryableError(err) && !common.IsContextDoneErr(err) {
			// the transaction reverted on chain; resubmitting would
			// revert again and wedge the queue behind it
			q.fail(item, err)

			return
		}

		// timed out or transient failure: bump the price and resubmit
		item.State = relayerstore.TxStatePending
		item.TxHash = ""
		q.reschedule(ctx, item, err)

		return
	}

	item.State = relayerstore.TxStateFinalized

	if err := q.store.UpdateTx(item); err != nil {
		q.logger.Error("failed to persist finalized state", "id", item.ID, "err", err)
	}

	q.logger.Info("transaction finalized", "id", item.ID, "hash", item.TxHash)
	telemetry.UpdateTxFinalizedCounter(item.ChainID.String(), 1)
	q.publish(item, true)

	if err := q.store.RemoveTx(item.ChainID, item.Seq, item.DedupKey); err != nil {
		q.logger.Error("failed to remove finalized tx", "id", item.ID, "err", err)
	}
}

// resolveGasPrice computes max(oracle price, last price * 1.125^attempts).
func (q *TxQueueImpl) resolveGasPrice(ctx context.Context, item *relayerstore.TxQueueItem) (*big.Int, error) {
	oraclePrice, err := q.submitter.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	if len(item.LastGasPrice) == 0 {
		return oraclePrice, nil
	}

	bumped := new(big.Int).SetBytes(item.LastGasPrice)
	for i := uint32(0); i < item.Attempts; i++ {
		bumped.Mul(bumped, big.NewInt(1125))
		bumped.Div(bumped, big.NewInt(1000))
	}

	if bumped.Cmp(oraclePrice) > 0 {
		return bumped, nil
	}

	return oraclePrice, nil
}

func (q *TxQueueImpl) reschedule(ctx context.Context, item *relayerstore.TxQueueItem, cause error) {
	if ctx.Err() != nil {
		return
	}

	item.Attempts++

	delay := time.Second << min(item.Attempts, 10)
	if delay > q.config.MaxSleepInterval {
		delay = q.config.MaxSleepInterval
	}

	item.NextAttemptAt = time.Now().UTC().Add(delay)

	if err := q.store.UpdateTx(item); err != nil {
		q.logger.Error("failed to persist retry state", "id", item.ID, "err", err)
	}

	q.logger.Warn("submission rescheduled",
		"id", item.ID, "attempts", item.Attempts, "delay", delay, "err", cause)

	q.sleep(ctx, delay)
}

func (q *TxQueueImpl) fail(item *relayerstore.TxQueueItem, cause error) {
	item.State = relayerstore.TxStateFailed
	item.FailureReason = cause.Error()

	if err := q.store.UpdateTx(item); err != nil {
		q.logger.Error("failed to persist failed state", "id", item.ID, "err", err)
	}

	q.logger.Error("transaction failed permanently", "id", item.ID, "err", cause)
	telemetry.UpdateTxFailedCounter(item.ChainID.String(), 1)
	q.publish(item, false)
}

func (q *TxQueueImpl) publish(item *relayerstore.TxQueueItem, finalized bool) {
	if q.bus == nil {
		return
	}

	chainType := item.ChainID.Type.String()
	chainIDStr := item.ChainID.UnderlyingStr()

	q.bus.Publish(relayerevents.NewTxQueueEvent(
		chainType, chainIDStr, item.ID, item.State.String(), finalized))

	if item.Kind == relayerstore.TxKindPrivateWithdraw && (finalized || item.State == relayerstore.TxStateFailed) {
		q.bus.Publish(relayerevents.NewPrivateTxEvent(chainType, chainIDStr, item.ID, finalized))
	}

	if item.Kind == relayerstore.TxKindExecuteProposal && finalized {
		q.bus.Publish(relayerevents.NewSignatureBridgeEvent(
			chainType, chainIDStr, relayerstore.TxKindExecuteProposal.String()))
	}
}

func (q *TxQueueImpl) sleep(ctx context.Context, duration time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
}
