package handlers

import (
	"context"
	"fmt"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	signingcore "github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	txqueue "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue"
	"github.com/hashicorp/go-hclog"
)

// Enqueuer is the queue-side surface handlers hand signed work to.
type Enqueuer interface {
	Enqueue(item *relayerstore.TxQueueItem) (string, bool, error)
}

// UpdateEdgeFnSig is the selector of the target function an anchor
// update proposal executes.
var UpdateEdgeFnSig = proposals.FunctionSignature{0x00, 0x00, 0x00, 0x00}

// LinkedAnchor names a foreign anchor linked to the local one.
type LinkedAnchor struct {
	Resource proposals.ResourceID
	ChainID  common.ChainID
}

// AnchorEdgeHandler proposes edge updates to every linked anchor when the
// local anchor's root changes. Duplicate roots and stale nonces are
// suppressed from the persisted edge state.
type AnchorEdgeHandler struct {
	store       relayerstore.Store
	backend     signingcore.Backend
	queues      map[common.ChainID]Enqueuer
	srcResource proposals.ResourceID
	linked      []LinkedAnchor
	logger      hclog.Logger
}

var _ core.EventHandler = (*AnchorEdgeHandler)(nil)

func NewAnchorEdgeHandler(
	store relayerstore.Store, backend signingcore.Backend, queues map[common.ChainID]Enqueuer,
	srcResource proposals.ResourceID, linked []LinkedAnchor, logger hclog.Logger,
) *AnchorEdgeHandler {
	return &AnchorEdgeHandler{
		store:       store,
		backend:     backend,
		queues:      queues,
		srcResource: srcResource,
		linked:      linked,
		logger:      logger.Named("anchor_edge"),
	}
}

func (h *AnchorEdgeHandler) Name() string {
	return "anchor_edge_proposer"
}

func (h *AnchorEdgeHandler) Kinds() []chaincore.EventKind {
	return []chaincore.EventKind{chaincore.EventKindNewCommitment}
}

func (h *AnchorEdgeHandler) HandleEvent(
	ctx context.Context, ev *chaincore.Event, effects *core.EffectLog,
) error {
	commitment := ev.NewCommitment
	if commitment == nil {
		return common.NewProtocolError("NewCommitment event without payload", nil)
	}

	srcChain := ev.ChainID

	for _, foreign := range h.linked {
		edgeKey := relayerstore.EdgeKey(foreign.Resource, srcChain)

		edge, err := h.currentEdge(effects, edgeKey)
		if err != nil {
			return fmt.Errorf("failed to read edge state: %w", err)
		}

		nonce := uint32(1)

		if edge != nil {
			if edge.Root == commitment.Root {
				continue
			}

			nonce = edge.Nonce + 1
		}

		proposed, err := h.hasProposal(effects, foreign.Resource, nonce)
		if err != nil {
			return err
		}

		if proposed {
			continue
		}

		proposal := proposals.NewAnchorUpdateProposal(proposals.ProposalHeader{
			ResourceID:        foreign.Resource,
			FunctionSignature: UpdateEdgeFnSig,
			Nonce:             nonce,
		}, commitment.Root, h.srcResource)

		signed, err := h.backend.Sign(ctx, proposal)
		if err != nil {
			// retryable signing failures bubble to the watcher's backoff
			return err
		}

		item, err := txqueue.BuildExecuteProposalItem(signed)
		if err != nil {
			return common.NewProtocolError("failed to build execute proposal", err)
		}

		queue, exists := h.queues[foreign.ChainID]
		if !exists {
			h.logger.Warn("no tx queue for linked anchor chain", "chain", foreign.ChainID.String())

			continue
		}

		if _, _, err := queue.Enqueue(item); err != nil {
			return fmt.Errorf("failed to enqueue proposal execution: %w", err)
		}

		// the edge and proposal marker commit with the cursor; a crash
		// before that replays the event and the queue's dedup key
		// collapses the second enqueue
		resource := foreign.Resource
		proposalNonce := nonce
		edgeState := relayerstore.EdgeState{
			Root:      commitment.Root,
			LeafIndex: commitment.LeafIndex,
			Nonce:     nonce,
		}

		effects.Add(func(batch relayerstore.Batch) error {
			return batch.PutEdge(edgeKey, edgeState)
		})
		effects.Add(func(batch relayerstore.Batch) error {
			return batch.MarkProposal(resource, proposalNonce)
		})
		effects.Put(edgeScratchKey(edgeKey), edgeState)
		effects.Put(proposalScratchKey(resource, proposalNonce), true)

		h.logger.Info("anchor update proposed",
			"target", foreign.Resource.String(), "nonce", nonce, "src_chain", srcChain.String())
	}

	return nil
}

// currentEdge overlays the batch's pending edge writes on the committed
// state.
func (h *AnchorEdgeHandler) currentEdge(
	effects *core.EffectLog, edgeKey []byte,
) (*relayerstore.EdgeState, error) {
	if pending, exists := effects.Get(edgeScratchKey(edgeKey)); exists {
		edge := pending.(relayerstore.EdgeState)

		return &edge, nil
	}

	return h.store.GetEdge(edgeKey)
}

func (h *AnchorEdgeHandler) hasProposal(
	effects *core.EffectLog, resource proposals.ResourceID, nonce uint32,
) (bool, error) {
	if _, exists := effects.Get(proposalScratchKey(resource, nonce)); exists {
		return true, nil
	}

	return h.store.HasProposal(resource, nonce)
}

func edgeScratchKey(edgeKey []byte) string {
	return "edge/" + string(edgeKey)
}

func proposalScratchKey(resource proposals.ResourceID, nonce uint32) string {
	return fmt.Sprintf("proposal/%s/%d", resource.String(), nonce)
}
