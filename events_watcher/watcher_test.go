package eventswatcher

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	databaseaccess "github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore/database_access"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	chainID common.ChainID
	head    uint64
	events  []*chaincore.Event
	mutex   sync.Mutex
}

var _ chaincore.Client = (*fakeClient)(nil)

func (c *fakeClient) ChainID() common.ChainID {
	return c.chainID
}

func (c *fakeClient) LatestBlock(_ context.Context) (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.head, nil
}

func (c *fakeClient) FetchEvents(
	_ context.Context, from, to uint64, filter chaincore.EventFilter,
) ([]*chaincore.Event, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var result []*chaincore.Event

	for _, ev := range c.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to && filter.Matches(ev.Kind) {
			result = append(result, ev)
		}
	}

	return result, nil
}

func (c *fakeClient) GasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (c *fakeClient) Close() {}

type recordingHandler struct {
	name     string
	failures map[uint64]error
	mutex    sync.Mutex
	handled  []uint64
}

var _ core.EventHandler = (*recordingHandler)(nil)

func (h *recordingHandler) Name() string {
	return h.name
}

func (h *recordingHandler) Kinds() []chaincore.EventKind {
	return []chaincore.EventKind{chaincore.EventKindNewCommitment}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev *chaincore.Event, _ *core.EffectLog) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err, exists := h.failures[ev.BlockNumber]; exists {
		delete(h.failures, ev.BlockNumber)

		return err
	}

	h.handled = append(h.handled, ev.BlockNumber)

	return nil
}

func (h *recordingHandler) handledBlocks() []uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return append([]uint64{}, h.handled...)
}

func newCommitmentEvent(chainID common.ChainID, block uint64, index uint) *chaincore.Event {
	return &chaincore.Event{
		ChainID:     chainID,
		Target:      "0x91eB",
		Kind:        chaincore.EventKindNewCommitment,
		BlockNumber: block,
		LogIndex:    index,
		NewCommitment: &chaincore.NewCommitmentEvent{
			Commitment:     [32]byte{byte(block)},
			LeafIndex:      uint64(index),
			LeafIndexKnown: true,
		},
	}
}

func watcherConfig(chainID common.ChainID) core.WatcherConfig {
	return core.WatcherConfig{
		ChainID:         chainID,
		Target:          "0x91eB",
		Kinds:           []chaincore.EventKind{chaincore.EventKindNewCommitment},
		DeployedAt:      0,
		Confirmations:   1,
		PollingInterval: 5 * time.Millisecond,
	}
}

func runWatcherUntil(t *testing.T, watcher *EventWatcherImpl, condition func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = watcher.Start(ctx)
	}()

	require.Eventually(t, condition, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestEventWatcher(t *testing.T) {
	chainID := common.NewEVMChainID(5001)
	logger := hclog.NewNullLogger()

	t.Run("TestDeliversInOrderAndAdvancesCursor", func(t *testing.T) {
		store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "w.db"))
		require.NoError(t, err)

		defer store.Close()

		client := &fakeClient{chainID: chainID, head: 10, events: []*chaincore.Event{
			newCommitmentEvent(chainID, 2, 0),
			newCommitmentEvent(chainID, 3, 0),
			newCommitmentEvent(chainID, 5, 1),
		}}
		handler := &recordingHandler{name: "recorder"}
		watcher := NewEventWatcher(client, store, []core.EventHandler{handler}, watcherConfig(chainID), logger)

		// wait on the durable outcome: the cursor commits after dispatch
		runWatcherUntil(t, watcher, func() bool {
			cursor, err := store.GetLastBlock(watcher.watcherKey, 0)

			return err == nil && cursor == 9 // head - confirmations
		})

		require.Equal(t, []uint64{2, 3, 5}, handler.handledBlocks())
	})

	t.Run("TestNoRedeliveryAfterRestart", func(t *testing.T) {
		store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "w.db"))
		require.NoError(t, err)

		defer store.Close()

		client := &fakeClient{chainID: chainID, head: 10, events: []*chaincore.Event{
			newCommitmentEvent(chainID, 2, 0),
		}}

		first := &recordingHandler{name: "recorder"}
		watcher := NewEventWatcher(client, store, []core.EventHandler{first}, watcherConfig(chainID), logger)
		runWatcherUntil(t, watcher, func() bool {
			cursor, err := store.GetLastBlock(watcher.watcherKey, 0)

			return err == nil && cursor == 9
		})
		require.Len(t, first.handledBlocks(), 1)

		// a fresh watcher over the same store starts past the event
		second := &recordingHandler{name: "recorder"}
		restarted := NewEventWatcher(client, store, []core.EventHandler{second}, watcherConfig(chainID), logger)
		runWatcherUntil(t, restarted, func() bool { return restarted.State() == core.StateTailing })

		require.Empty(t, second.handledBlocks())
	})

	t.Run("TestRetryableErrorIsRetried", func(t *testing.T) {
		store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "w.db"))
		require.NoError(t, err)

		defer store.Close()

		client := &fakeClient{chainID: chainID, head: 10, events: []*chaincore.Event{
			newCommitmentEvent(chainID, 2, 0),
		}}
		handler := &recordingHandler{
			name: "recorder",
			failures: map[uint64]error{
				2: common.NewRetryableError(errors.New("transient")),
			},
		}
		watcher := NewEventWatcher(client, store, []core.EventHandler{handler}, watcherConfig(chainID), logger)

		runWatcherUntil(t, watcher, func() bool {
			cursor, err := store.GetLastBlock(watcher.watcherKey, 0)

			return err == nil && cursor == 9
		})

		require.Len(t, handler.handledBlocks(), 1)

		recorded, err := store.IsDeadLettered(chainID, 2, 0, "recorder")
		require.NoError(t, err)
		require.False(t, recorded)
	})

	t.Run("TestPermanentErrorIsDeadLettered", func(t *testing.T) {
		store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "w.db"))
		require.NoError(t, err)

		defer store.Close()

		client := &fakeClient{chainID: chainID, head: 10, events: []*chaincore.Event{
			newCommitmentEvent(chainID, 2, 0),
			newCommitmentEvent(chainID, 3, 0),
		}}
		handler := &recordingHandler{
			name: "recorder",
			failures: map[uint64]error{
				2: common.NewProtocolError("malformed", nil),
			},
		}
		watcher := NewEventWatcher(client, store, []core.EventHandler{handler}, watcherConfig(chainID), logger)

		// the dead letter commits together with the cursor advance
		runWatcherUntil(t, watcher, func() bool {
			recorded, err := store.IsDeadLettered(chainID, 2, 0, "recorder")

			return err == nil && recorded
		})

		// the bad event is recorded, the good one was still delivered
		require.Equal(t, []uint64{3}, handler.handledBlocks())

		cursor, err := store.GetLastBlock(watcher.watcherKey, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(9), cursor)
	})
}
