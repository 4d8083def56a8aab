package eventswatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

// EventWatcherImpl loops one chain target from a persisted cursor,
// dispatches events to its handlers with retry, and advances the cursor
// only after every event in the batch is terminal.
type EventWatcherImpl struct {
	client   chaincore.Client
	store    relayerstore.Store
	handlers []core.EventHandler
	config   core.WatcherConfig
	logger   hclog.Logger

	watcherKey []byte
	state      atomic.Int32
	netErrors  int
}

var _ core.EventWatcher = (*EventWatcherImpl)(nil)

func NewEventWatcher(
	client chaincore.Client, store relayerstore.Store,
	handlers []core.EventHandler, config core.WatcherConfig, logger hclog.Logger,
) *EventWatcherImpl {
	config.ApplyDefaults()

	kindTag := ""
	for _, kind := range config.Kinds {
		kindTag += string(kind)
	}

	return &EventWatcherImpl{
		client:   client,
		store:    store,
		handlers: handlers,
		config:   config,
		logger: logger.Named("events_watcher").
			With("chain", config.ChainID.String(), "target", config.Target),
		watcherKey: relayerstore.WatcherKey(config.ChainID, config.Target, kindTag),
	}
}

func (w *EventWatcherImpl) State() core.WatcherState {
	return core.WatcherState(w.state.Load())
}

func (w *EventWatcherImpl) setState(state core.WatcherState) {
	if w.State() != state {
		w.logger.Info("watcher state changed", "state", state.String())
	}

	w.state.Store(int32(state))
	telemetry.UpdateWatcherState(w.config.ChainID.String(), int32(state))
}

func (w *EventWatcherImpl) Start(ctx context.Context) error {
	w.setState(core.StateBooting)
	defer w.setState(core.StateStopped)

	cursor, err := w.store.GetLastBlock(w.watcherKey, w.config.DeployedAt)
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	w.logger.Info("watcher starting", "cursor", cursor)
	w.setState(core.StateBackfilling)

	lastProgress := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		advanced, newCursor, err := w.step(ctx, cursor)
		if err != nil {
			if common.IsContextDoneErr(err) {
				return nil
			}

			w.onNetworkError(err)
			w.sleep(ctx)

			continue
		}

		w.netErrors = 0

		if !advanced {
			w.setState(core.StateTailing)
			w.sleep(ctx)

			continue
		}

		cursor = newCursor

		if w.config.PrintProgressInterval > 0 && time.Since(lastProgress) >= w.config.PrintProgressInterval {
			w.logger.Info("watcher progress", "cursor", cursor, "state", w.State().String())

			lastProgress = time.Now()
		}
	}
}

// step performs one fetch-dispatch-advance round. Returns whether the
// cursor moved and its new value.
func (w *EventWatcherImpl) step(ctx context.Context, cursor uint64) (bool, uint64, error) {
	head, err := w.client.LatestBlock(ctx)
	if err != nil {
		return false, cursor, err
	}

	if head < w.config.Confirmations {
		return false, cursor, nil
	}

	safeHead := head - w.config.Confirmations

	to := cursor + w.config.MaxBlocksPerStep
	if to > safeHead {
		to = safeHead
	}

	if to <= cursor {
		return false, cursor, nil
	}

	events, err := w.client.FetchEvents(ctx, cursor+1, to, chaincore.EventFilter{
		Target: w.config.Target,
		Kinds:  w.config.Kinds,
	})
	if err != nil {
		return false, cursor, err
	}

	effects := core.NewEffectLog()

	for _, ev := range events {
		if err := w.dispatch(ctx, ev, effects); err != nil {
			return false, cursor, err
		}
	}

	// handler effects and the new cursor commit in one transaction, so
	// the cursor never leads the side effects
	if err := w.store.AdvanceCursor(w.watcherKey, to, effects.Apply); err != nil {
		return false, cursor, fmt.Errorf("failed to advance cursor: %w", err)
	}

	telemetry.UpdateWatcherCursor(w.config.ChainID.String(), to)

	return true, to, nil
}

// dispatch delivers one event to every handler registered for its kind.
// Retryable handler errors are retried with capped backoff; exhaustion and
// protocol errors record a dead letter effect and the event is treated as
// terminal.
func (w *EventWatcherImpl) dispatch(ctx context.Context, ev *chaincore.Event, effects *core.EffectLog) error {
	for _, handler := range w.handlers {
		if !handlerWants(handler, ev.Kind) {
			continue
		}

		recorded, err := w.store.IsDeadLettered(ev.ChainID, ev.BlockNumber, ev.LogIndex, handler.Name())
		if err != nil {
			return err
		}

		if recorded {
			continue
		}

		err = common.RetryWithBackoff(ctx, w.config.MaxRetryAttempts, func(ctx context.Context) error {
			handleErr := handler.HandleEvent(ctx, ev, effects)
			if common.IsRetryableError(handleErr) {
				return retry.RetryableError(handleErr)
			}

			return handleErr
		})

		if err == nil {
			continue
		}

		if common.IsContextDoneErr(err) {
			return err
		}

		w.logger.Error("handler failed terminally for event",
			"handler", handler.Name(), "block", ev.BlockNumber, "log_index", ev.LogIndex, "err", err)

		record := relayerstore.DeadLetterRecord{
			ChainID:     ev.ChainID,
			BlockNumber: ev.BlockNumber,
			LogIndex:    ev.LogIndex,
			HandlerName: handler.Name(),
			Reason:      err.Error(),
		}

		effects.Add(func(batch relayerstore.Batch) error {
			return batch.RecordDeadLetter(record)
		})
	}

	return nil
}

func (w *EventWatcherImpl) onNetworkError(err error) {
	w.netErrors++

	if w.netErrors >= w.config.DegradedThreshold {
		w.setState(core.StateDegraded)
	}

	w.logger.Error("watcher network error", "consecutive", w.netErrors, "err", err)
}

func (w *EventWatcherImpl) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.config.PollingInterval):
	}
}

func handlerWants(handler core.EventHandler, kind chaincore.EventKind) bool {
	for _, k := range handler.Kinds() {
		if k == kind {
			return true
		}
	}

	return false
}
