package core

import (
	"context"
	"math/big"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
)

type EventKind string

const (
	EventKindNewCommitment  EventKind = "NewCommitment"
	EventKindProposalSigned EventKind = "ProposalSigned"
)

// NewCommitmentEvent is a deposit-style event: one leaf appended to an
// anchor tree. The evm client sets Root to the anchor's current root read
// at fetch time, not the root right after this insertion; substrate
// events leave Root zero.
type NewCommitmentEvent struct {
	Commitment [32]byte
	// LeafIndex is only meaningful when LeafIndexKnown; substrate pallets
	// emit leaves without their index and the indexer appends in order.
	LeafIndex       uint64
	LeafIndexKnown  bool
	Root            [32]byte
	EncryptedOutput []byte
}

// ProposalSignedEvent is emitted by the dkg chain once a threshold
// signature over a proposal exists. The target chain is recovered from
// the proposal header inside Data.
type ProposalSignedEvent struct {
	Data      []byte
	Signature []byte
}

// Event is one chain event in on-chain order. Exactly one of the payload
// pointers is set, matching Kind.
type Event struct {
	ChainID     common.ChainID
	Target      string
	Kind        EventKind
	BlockNumber uint64
	LogIndex    uint

	NewCommitment  *NewCommitmentEvent
	ProposalSigned *ProposalSignedEvent
}

// EventFilter selects the events of one watcher: a single contract or
// pallet and the kinds it reacts to.
type EventFilter struct {
	Target string
	Kinds  []EventKind
}

func (f EventFilter) Matches(kind EventKind) bool {
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}

	return false
}

// Client is the capability set the watcher engine needs from a chain,
// implemented by the evm and substrate back ends.
type Client interface {
	ChainID() common.ChainID
	// LatestBlock is the current head height.
	LatestBlock(ctx context.Context) (uint64, error)
	// FetchEvents returns the filtered events of blocks [from, to],
	// ordered by (block, log index).
	FetchEvents(ctx context.Context, from, to uint64, filter EventFilter) ([]*Event, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Close()
}
