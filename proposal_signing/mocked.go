package proposalsigning

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
)

// MockedBackend signs proposals with the governor's private key held in
// memory. The signature is the 65 byte r||s||v ecdsa signature over
// keccak256 of the proposal bytes, v in {27, 28}, matching what the
// signature bridge contract recovers.
type MockedBackend struct {
	key     *ecdsa.PrivateKey
	address ethcommon.Address
	bus     *relayerevents.Bus
	logger  hclog.Logger
}

var _ core.Backend = (*MockedBackend)(nil)

func NewMockedBackend(privateKeyHex string, bus *relayerevents.Bus, logger hclog.Logger) (*MockedBackend, error) {
	keyBytes, err := common.DecodeHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid governor private key: %w", err)
	}

	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid governor private key: %w", err)
	}

	return &MockedBackend{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		bus:     bus,
		logger:  logger.Named("mocked_backend"),
	}, nil
}

func (b *MockedBackend) Name() string {
	return core.BackendNameMocked
}

// GovernorAddress is the address recovered from every signature this
// backend produces.
func (b *MockedBackend) GovernorAddress() ethcommon.Address {
	return b.address
}

func (b *MockedBackend) Sign(_ context.Context, proposal *proposals.UnsignedProposal) (*proposals.SignedProposal, error) {
	hash := proposal.Hash()

	signature, err := crypto.Sign(hash.Bytes(), b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign proposal: %w", err)
	}

	// crypto.Sign yields v in {0, 1}; solidity ecrecover expects 27/28
	signature[64] += 27

	b.logger.Debug("signed proposal",
		"kind", proposal.Kind.String(), "nonce", proposal.Header.Nonce, "hash", hash.Hex())

	telemetry.UpdateProposalsSignedCounter(b.Name(), 1)

	if b.bus != nil {
		b.bus.Publish(relayerevents.NewSigningBackendEvent(b.Name(), hash.Hex()))
	}

	return &proposals.SignedProposal{
		Proposal:  proposal,
		Signature: signature,
	}, nil
}
