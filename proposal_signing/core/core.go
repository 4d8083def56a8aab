package core

import (
	"context"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
)

const (
	BackendNameMocked  = "Mocked"
	BackendNameDKGNode = "DKGNode"
)

// Backend resolves an unsigned proposal to a signed one. Mocked signs
// synchronously with a local governor key; DKGNode dispatches to the dkg
// chain and waits for the matching ProposalSigned event.
type Backend interface {
	Name() string
	Sign(ctx context.Context, proposal *proposals.UnsignedProposal) (*proposals.SignedProposal, error)
}
