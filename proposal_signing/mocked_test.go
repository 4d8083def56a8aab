package proposalsigning

import (
	"context"
	"testing"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const testGovernorKey = "0000000000000000000000000000000000000000000000000000000000000001"

func testProposal(t *testing.T) *proposals.UnsignedProposal {
	t.Helper()

	header := proposals.ProposalHeader{
		ResourceID: proposals.NewResourceID(
			ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"),
			common.NewEVMChainID(5002),
		),
		FunctionSignature: proposals.FunctionSignature{0x01, 0x02, 0x03, 0x04},
		Nonce:             1,
	}

	return proposals.NewAnchorUpdateProposal(header, [32]byte{0xaa}, proposals.NewResourceID(
		ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.NewEVMChainID(5001),
	))
}

func TestMockedBackend(t *testing.T) {
	logger := hclog.NewNullLogger()

	t.Run("TestInvalidKey", func(t *testing.T) {
		_, err := NewMockedBackend("zz", nil, logger)
		require.Error(t, err)
	})

	t.Run("TestSignatureRecoversToGovernor", func(t *testing.T) {
		backend, err := NewMockedBackend(testGovernorKey, nil, logger)
		require.NoError(t, err)

		proposal := testProposal(t)

		signed, err := backend.Sign(context.Background(), proposal)
		require.NoError(t, err)
		require.Len(t, signed.Signature, 65)
		require.Contains(t, []byte{27, 28}, signed.Signature[64])

		// recover with v normalized back to {0, 1}
		recoverSig := append([]byte{}, signed.Signature...)
		recoverSig[64] -= 27

		pubKey, err := crypto.SigToPub(proposal.Hash().Bytes(), recoverSig)
		require.NoError(t, err)
		require.Equal(t, backend.GovernorAddress(), crypto.PubkeyToAddress(*pubKey))
	})

	t.Run("TestSignedWireForm", func(t *testing.T) {
		backend, err := NewMockedBackend(testGovernorKey, nil, logger)
		require.NoError(t, err)

		proposal := testProposal(t)

		signed, err := backend.Sign(context.Background(), proposal)
		require.NoError(t, err)

		wire := signed.Bytes()
		require.Equal(t, proposal.Bytes(), wire[:len(wire)-65])
		require.Equal(t, signed.Signature, wire[len(wire)-65:])
	})

	t.Run("TestPublishesSigningBackendEvent", func(t *testing.T) {
		bus := relayerevents.NewBus()

		eventCh := make(chan relayerevents.Event, 1)
		sub := bus.Subscribe(eventCh)

		defer sub.Unsubscribe()

		backend, err := NewMockedBackend(testGovernorKey, bus, logger)
		require.NoError(t, err)

		_, err = backend.Sign(context.Background(), testProposal(t))
		require.NoError(t, err)

		ev := <-eventCh
		require.Equal(t, relayerevents.KindSigningBackend, ev.Kind)
		require.Equal(t, "Mocked", ev.Event["backend"])
	})
}
