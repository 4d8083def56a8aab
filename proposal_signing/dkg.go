package proposalsigning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/substrate"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
)

const DefaultSigningTimeout = 10 * time.Minute

// DKGBackend submits unsigned proposals to the dkg chain and completes
// once the dkg chain's watcher observes the matching ProposalSigned
// event. Correlation is by keccak256 of the unsigned proposal bytes.
type DKGBackend struct {
	client  *substrate.Client
	timeout time.Duration
	bus     *relayerevents.Bus
	logger  hclog.Logger

	pending map[ethcommon.Hash]chan *proposals.SignedProposal
	mutex   sync.Mutex
}

var _ core.Backend = (*DKGBackend)(nil)

func NewDKGBackend(
	client *substrate.Client, timeout time.Duration, bus *relayerevents.Bus, logger hclog.Logger,
) *DKGBackend {
	if timeout == 0 {
		timeout = DefaultSigningTimeout
	}

	return &DKGBackend{
		client:  client,
		timeout: timeout,
		bus:     bus,
		logger:  logger.Named("dkg_backend").With("dkg_chain", client.ChainID().String()),
		pending: map[ethcommon.Hash]chan *proposals.SignedProposal{},
	}
}

func (b *DKGBackend) Name() string {
	return core.BackendNameDKGNode
}

func (b *DKGBackend) Sign(ctx context.Context, proposal *proposals.UnsignedProposal) (*proposals.SignedProposal, error) {
	hash := proposal.Hash()

	resultCh := b.register(hash)
	defer b.unregister(hash)

	if _, err := b.client.SubmitUnsignedProposal(ctx, proposal.Bytes()); err != nil {
		return nil, common.NewRetryableError(fmt.Errorf("failed to dispatch proposal to dkg: %w", err))
	}

	b.logger.Debug("proposal dispatched to dkg",
		"kind", proposal.Kind.String(), "nonce", proposal.Header.Nonce, "hash", hash.Hex())

	if b.bus != nil {
		b.bus.Publish(relayerevents.NewSigningBackendEvent(b.Name(), hash.Hex()))
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(b.timeout):
		telemetry.UpdateProposalsTimedOutCounter(b.Name(), 1)

		return nil, common.NewRetryableError(common.ErrSigningTimeout)
	case signed := <-resultCh:
		telemetry.UpdateProposalsSignedCounter(b.Name(), 1)

		return signed, nil
	}
}

// CompleteSigned resolves a pending Sign call from a ProposalSigned event
// observed on the dkg chain. Unmatched events are ignored; another
// relayer instance may have dispatched them.
func (b *DKGBackend) CompleteSigned(data, signature []byte) {
	hash := ethcommon.BytesToHash(crypto.Keccak256(data))

	b.mutex.Lock()
	resultCh, exists := b.pending[hash]
	b.mutex.Unlock()

	if !exists {
		return
	}

	proposal, err := proposals.UnsignedProposalFromBytes(proposals.ProposalAnchorUpdate, data)
	if err != nil {
		b.logger.Warn("signed proposal with unparseable header", "hash", hash.Hex(), "err", err)

		return
	}

	signed := &proposals.SignedProposal{
		Proposal:  proposal,
		Signature: signature,
	}

	select {
	case resultCh <- signed:
	default:
	}
}

func (b *DKGBackend) register(hash ethcommon.Hash) chan *proposals.SignedProposal {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	resultCh := make(chan *proposals.SignedProposal, 1)
	b.pending[hash] = resultCh

	return resultCh
}

func (b *DKGBackend) unregister(hash ethcommon.Hash) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.pending, hash)
}
