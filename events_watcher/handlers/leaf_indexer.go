package handlers

import (
	"context"
	"errors"
	"fmt"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	"github.com/hashicorp/go-hclog"
)

// LeafIndexerHandler appends observed commitments to the anchor's leaf
// cache. Appends are gap free: an event ahead of the cache is rejected
// with a retryable error, one behind it is a replay and ignored. The
// missing range is not fetched again; once the watcher's retries of the
// same event run out, the event is dead-lettered.
// Writes are recorded to the effect log and commit with the cursor.
type LeafIndexerHandler struct {
	store  relayerstore.Store
	tree   relayerstore.TreeKey
	bus    *relayerevents.Bus
	logger hclog.Logger
}

var _ core.EventHandler = (*LeafIndexerHandler)(nil)

func NewLeafIndexerHandler(
	store relayerstore.Store, tree relayerstore.TreeKey, bus *relayerevents.Bus, logger hclog.Logger,
) *LeafIndexerHandler {
	return &LeafIndexerHandler{
		store:  store,
		tree:   tree,
		bus:    bus,
		logger: logger.Named("leaf_indexer"),
	}
}

func (h *LeafIndexerHandler) Name() string {
	return "leaf_indexer"
}

func (h *LeafIndexerHandler) Kinds() []chaincore.EventKind {
	return []chaincore.EventKind{chaincore.EventKindNewCommitment}
}

func (h *LeafIndexerHandler) HandleEvent(
	_ context.Context, ev *chaincore.Event, effects *core.EffectLog,
) error {
	commitment := ev.NewCommitment
	if commitment == nil {
		return common.NewProtocolError("NewCommitment event without payload", nil)
	}

	meta, err := h.currentMeta(effects, h.tree)
	if err != nil {
		return fmt.Errorf("failed to read leaf meta: %w", err)
	}

	if commitment.LeafIndexKnown {
		switch {
		case commitment.LeafIndex < meta.Count:
			// replay of an already indexed deposit
			return nil
		case commitment.LeafIndex > meta.Count:
			// a gap means earlier events were missed; the watcher retries
			// this same event and does not refetch the missing blocks
			h.logger.Warn("leaf gap detected",
				"expected", meta.Count, "got", commitment.LeafIndex, "block", ev.BlockNumber)

			return common.NewRetryableError(errors.New("leaf index ahead of cache"))
		}
	}

	tree := h.tree
	index := meta.Count
	leaf := commitment.Commitment

	effects.Add(func(batch relayerstore.Batch) error {
		return batch.InsertLeaf(tree, index, leaf)
	})

	meta.Count++
	if ev.BlockNumber > meta.LastBlock {
		meta.LastBlock = ev.BlockNumber
	}

	metaCopy := meta

	effects.Add(func(batch relayerstore.Batch) error {
		return batch.SetLeafMeta(tree, metaCopy)
	})
	effects.Put(metaScratchKey(tree), meta)

	if len(commitment.EncryptedOutput) > 0 {
		if err := h.recordEncryptedOutput(ev, effects); err != nil {
			return err
		}
	}

	h.logger.Debug("leaf indexed", "index", index, "block", ev.BlockNumber)
	telemetry.UpdateLeavesIndexedCounter(ev.ChainID.String(), 1)

	if h.bus != nil {
		h.bus.Publish(relayerevents.NewLeavesStoreEvent(
			ev.ChainID.Type.String(), ev.ChainID.UnderlyingStr(), index))
	}

	return nil
}

func (h *LeafIndexerHandler) recordEncryptedOutput(ev *chaincore.Event, effects *core.EffectLog) error {
	tree := h.tree
	encTree := relayerstore.EncryptedOutputTreeKey(tree)

	encMeta, err := h.currentMeta(effects, encTree)
	if err != nil {
		return fmt.Errorf("failed to read encrypted output meta: %w", err)
	}

	encIndex := encMeta.Count
	output := append([]byte{}, ev.NewCommitment.EncryptedOutput...)

	effects.Add(func(batch relayerstore.Batch) error {
		return batch.InsertEncryptedOutput(tree, encIndex, output)
	})

	encMeta.Count++
	if ev.BlockNumber > encMeta.LastBlock {
		encMeta.LastBlock = ev.BlockNumber
	}

	encMetaCopy := encMeta

	effects.Add(func(batch relayerstore.Batch) error {
		return batch.SetLeafMeta(encTree, encMetaCopy)
	})
	effects.Put(metaScratchKey(encTree), encMeta)

	return nil
}

// currentMeta overlays not-yet-committed appends of the running batch on
// top of the committed meta.
func (h *LeafIndexerHandler) currentMeta(
	effects *core.EffectLog, tree relayerstore.TreeKey,
) (relayerstore.LeafMeta, error) {
	if pending, exists := effects.Get(metaScratchKey(tree)); exists {
		return pending.(relayerstore.LeafMeta), nil
	}

	return h.store.GetLeafMeta(tree)
}

func metaScratchKey(tree relayerstore.TreeKey) string {
	return "leaf_meta/" + string(tree)
}
