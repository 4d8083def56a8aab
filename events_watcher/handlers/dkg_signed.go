package handlers

import (
	"context"
	"fmt"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	proposalsigning "github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	txqueue "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue"
	"github.com/hashicorp/go-hclog"
)

// DKGSignedHandler reacts to ProposalSigned events from the dkg chain:
// it completes any in-process signing waits and enqueues the proposal's
// execution on its target chain. The queue's dedup key collapses this
// with the signer-side enqueue when both race.
type DKGSignedHandler struct {
	backend *proposalsigning.DKGBackend
	queues  map[common.ChainID]Enqueuer
	bus     *relayerevents.Bus
	logger  hclog.Logger
}

var _ core.EventHandler = (*DKGSignedHandler)(nil)

func NewDKGSignedHandler(
	backend *proposalsigning.DKGBackend, queues map[common.ChainID]Enqueuer,
	bus *relayerevents.Bus, logger hclog.Logger,
) *DKGSignedHandler {
	return &DKGSignedHandler{
		backend: backend,
		queues:  queues,
		bus:     bus,
		logger:  logger.Named("dkg_signed"),
	}
}

func (h *DKGSignedHandler) Name() string {
	return "dkg_signed_handler"
}

func (h *DKGSignedHandler) Kinds() []chaincore.EventKind {
	return []chaincore.EventKind{chaincore.EventKindProposalSigned}
}

// HandleEvent has no store-side effects of its own; the queue it feeds
// is separately durable and deduplicated.
func (h *DKGSignedHandler) HandleEvent(_ context.Context, ev *chaincore.Event, _ *core.EffectLog) error {
	signedEv := ev.ProposalSigned
	if signedEv == nil {
		return common.NewProtocolError("ProposalSigned event without payload", nil)
	}

	if h.backend != nil {
		h.backend.CompleteSigned(signedEv.Data, signedEv.Signature)
	}

	proposal, err := proposals.UnsignedProposalFromBytes(proposals.ProposalAnchorUpdate, signedEv.Data)
	if err != nil {
		return common.NewProtocolError("signed proposal with malformed header", err)
	}

	signed := &proposals.SignedProposal{
		Proposal:  proposal,
		Signature: signedEv.Signature,
	}

	item, err := txqueue.BuildExecuteProposalItem(signed)
	if err != nil {
		return common.NewProtocolError("failed to build execute proposal", err)
	}

	queue, exists := h.queues[item.ChainID]
	if !exists {
		h.logger.Warn("signed proposal for unknown target chain", "chain", item.ChainID.String())

		return nil
	}

	if h.bus != nil {
		h.bus.Publish(relayerevents.NewSignatureBridgeEvent(
			item.ChainID.Type.String(), item.ChainID.UnderlyingStr(), item.Kind.String()))
	}

	if _, _, err := queue.Enqueue(item); err != nil {
		return fmt.Errorf("failed to enqueue proposal execution: %w", err)
	}

	return nil
}
