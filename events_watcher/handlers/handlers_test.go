package handlers

import (
	"context"
	"path/filepath"
	"testing"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	watchercore "github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	proposalsigning "github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	databaseaccess "github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore/database_access"
	txqueue "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	items []*relayerstore.TxQueueItem
	seen  map[string]bool
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{seen: map[string]bool{}}
}

func (f *fakeEnqueuer) Enqueue(item *relayerstore.TxQueueItem) (string, bool, error) {
	key := string(item.DedupKey)
	if key != "" && f.seen[key] {
		return "dup", false, nil
	}

	f.seen[key] = true
	f.items = append(f.items, item)

	return "id", true, nil
}

func newHandlerStore(t *testing.T) relayerstore.Store {
	t.Helper()

	store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

// commitEffects applies the effect log the way the watcher does: in the
// same transaction as a cursor advance.
func commitEffects(t *testing.T, store relayerstore.Store, effects *watchercore.EffectLog, block uint64) {
	t.Helper()

	key := relayerstore.WatcherKey(common.NewEVMChainID(5001), "0x91eB", "test")
	require.NoError(t, store.AdvanceCursor(key, block, effects.Apply))
}

func commitmentEvent(chainID common.ChainID, block, leafIndex uint64, root byte) *chaincore.Event {
	return &chaincore.Event{
		ChainID:     chainID,
		Target:      "0x91eB",
		Kind:        chaincore.EventKindNewCommitment,
		BlockNumber: block,
		LogIndex:    0,
		NewCommitment: &chaincore.NewCommitmentEvent{
			Commitment:      [32]byte{byte(leafIndex)},
			LeafIndex:       leafIndex,
			LeafIndexKnown:  true,
			Root:            [32]byte{root},
			EncryptedOutput: []byte{0xe0, byte(leafIndex)},
		},
	}
}

func TestLeafIndexerHandler(t *testing.T) {
	chainID := common.NewEVMChainID(5001)
	logger := hclog.NewNullLogger()

	t.Run("TestAppendsInOrder", func(t *testing.T) {
		store := newHandlerStore(t)
		tree := relayerstore.EVMTreeKey(chainID, "0x91eB")
		handler := NewLeafIndexerHandler(store, tree, nil, logger)

		// one effect log for the whole batch, like the watcher
		effects := watchercore.NewEffectLog()

		for i := uint64(0); i < 3; i++ {
			require.NoError(t, handler.HandleEvent(
				context.Background(), commitmentEvent(chainID, 10+i, i, 0x01), effects))
		}

		// nothing is durable until the batch commits with the cursor
		meta, err := store.GetLeafMeta(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(0), meta.Count)

		commitEffects(t, store, effects, 12)

		meta, err = store.GetLeafMeta(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(3), meta.Count)
		require.Equal(t, uint64(12), meta.LastBlock)

		leaves, err := store.GetLeaves(tree, 0, 3)
		require.NoError(t, err)
		require.Equal(t, [32]byte{0x00}, leaves[0])
		require.Equal(t, [32]byte{0x02}, leaves[2])

		outputs, err := store.GetEncryptedOutputs(tree, 0, 3)
		require.NoError(t, err)
		require.Len(t, outputs, 3)
		require.Equal(t, []byte{0xe0, 0x01}, outputs[1])
	})

	t.Run("TestDuplicateReplayIgnoredInBatch", func(t *testing.T) {
		store := newHandlerStore(t)
		tree := relayerstore.EVMTreeKey(chainID, "0x91eB")
		handler := NewLeafIndexerHandler(store, tree, nil, logger)

		effects := watchercore.NewEffectLog()
		ev := commitmentEvent(chainID, 10, 0, 0x01)

		require.NoError(t, handler.HandleEvent(context.Background(), ev, effects))
		// the scratch overlay makes the in-batch replay visible
		require.NoError(t, handler.HandleEvent(context.Background(), ev, effects))

		commitEffects(t, store, effects, 10)

		meta, err := store.GetLeafMeta(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(1), meta.Count)
	})

	t.Run("TestDuplicateReplayIgnoredAcrossBatches", func(t *testing.T) {
		store := newHandlerStore(t)
		tree := relayerstore.EVMTreeKey(chainID, "0x91eB")
		handler := NewLeafIndexerHandler(store, tree, nil, logger)

		ev := commitmentEvent(chainID, 10, 0, 0x01)

		effects := watchercore.NewEffectLog()
		require.NoError(t, handler.HandleEvent(context.Background(), ev, effects))
		commitEffects(t, store, effects, 10)

		// a crash-replay delivers the same event with a fresh log
		replayEffects := watchercore.NewEffectLog()
		require.NoError(t, handler.HandleEvent(context.Background(), ev, replayEffects))
		commitEffects(t, store, replayEffects, 10)

		meta, err := store.GetLeafMeta(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(1), meta.Count)
	})

	t.Run("TestGapIsRetryable", func(t *testing.T) {
		store := newHandlerStore(t)
		tree := relayerstore.EVMTreeKey(chainID, "0x91eB")
		handler := NewLeafIndexerHandler(store, tree, nil, logger)

		effects := watchercore.NewEffectLog()

		err := handler.HandleEvent(context.Background(), commitmentEvent(chainID, 10, 5, 0x01), effects)
		require.Error(t, err)
		require.True(t, common.IsRetryableError(err))

		commitEffects(t, store, effects, 10)

		meta, err := store.GetLeafMeta(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(0), meta.Count)
	})
}

func TestAnchorEdgeHandler(t *testing.T) {
	srcChain := common.NewEVMChainID(5001)
	dstChain := common.NewEVMChainID(5002)
	logger := hclog.NewNullLogger()

	srcResource := proposals.NewResourceID(
		ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"), srcChain)
	dstResource := proposals.NewResourceID(
		ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"), dstChain)

	newHandler := func(t *testing.T, store relayerstore.Store, enqueuer Enqueuer) *AnchorEdgeHandler {
		t.Helper()

		backend, err := proposalsigning.NewMockedBackend(
			"0000000000000000000000000000000000000000000000000000000000000001", nil, logger)
		require.NoError(t, err)

		return NewAnchorEdgeHandler(store, backend,
			map[common.ChainID]Enqueuer{dstChain: enqueuer},
			srcResource,
			[]LinkedAnchor{{Resource: dstResource, ChainID: dstChain}},
			logger)
	}

	handle := func(t *testing.T, store relayerstore.Store, handler *AnchorEdgeHandler, ev *chaincore.Event) {
		t.Helper()

		effects := watchercore.NewEffectLog()
		require.NoError(t, handler.HandleEvent(context.Background(), ev, effects))
		commitEffects(t, store, effects, ev.BlockNumber)
	}

	t.Run("TestProposesWithIncrementingNonce", func(t *testing.T) {
		store := newHandlerStore(t)
		enqueuer := newFakeEnqueuer()
		handler := newHandler(t, store, enqueuer)

		handle(t, store, handler, commitmentEvent(srcChain, 10, 0, 0x01))
		handle(t, store, handler, commitmentEvent(srcChain, 11, 1, 0x02))

		require.Len(t, enqueuer.items, 2)

		edge, err := store.GetEdge(relayerstore.EdgeKey(dstResource, srcChain))
		require.NoError(t, err)
		require.NotNil(t, edge)
		require.Equal(t, uint32(2), edge.Nonce)
		require.Equal(t, [32]byte{0x02}, edge.Root)
	})

	t.Run("TestSuppressesSameRoot", func(t *testing.T) {
		store := newHandlerStore(t)
		enqueuer := newFakeEnqueuer()
		handler := newHandler(t, store, enqueuer)

		handle(t, store, handler, commitmentEvent(srcChain, 10, 0, 0x01))
		// replay with the identical root proposes nothing new
		handle(t, store, handler, commitmentEvent(srcChain, 10, 0, 0x01))

		require.Len(t, enqueuer.items, 1)
	})

	t.Run("TestSuppressesSameRootWithinBatch", func(t *testing.T) {
		store := newHandlerStore(t)
		enqueuer := newFakeEnqueuer()
		handler := newHandler(t, store, enqueuer)

		// two events with the same root in one uncommitted batch: the
		// scratch overlay suppresses the second proposal
		effects := watchercore.NewEffectLog()
		require.NoError(t, handler.HandleEvent(
			context.Background(), commitmentEvent(srcChain, 10, 0, 0x01), effects))
		require.NoError(t, handler.HandleEvent(
			context.Background(), commitmentEvent(srcChain, 10, 1, 0x01), effects))
		commitEffects(t, store, effects, 10)

		require.Len(t, enqueuer.items, 1)
	})

	t.Run("TestEnqueuedItemTargetsBridge", func(t *testing.T) {
		store := newHandlerStore(t)
		enqueuer := newFakeEnqueuer()
		handler := newHandler(t, store, enqueuer)

		handle(t, store, handler, commitmentEvent(srcChain, 10, 0, 0x01))

		item := enqueuer.items[0]
		require.Equal(t, dstChain, item.ChainID)
		require.Equal(t, relayerstore.TxKindExecuteProposal, item.Kind)
		require.Equal(t, txqueue.GovernanceDedupKey(dstResource, 1), item.DedupKey)
	})
}
