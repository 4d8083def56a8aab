package proposals

import (
	"testing"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestResourceID(t *testing.T) {
	target := ethcommon.HexToAddress("0x91eB86019FD8D7c5d9605b6FD723341159c9CEA3")
	chainID := common.NewEVMChainID(5001)

	t.Run("TestNewResourceID", func(t *testing.T) {
		resourceID := NewResourceID(target, chainID)

		require.Equal(t, target, resourceID.TargetAddress())

		extracted, err := resourceID.TargetChainID()
		require.NoError(t, err)
		require.Equal(t, chainID, extracted)
	})

	t.Run("TestResourceIDWireForm", func(t *testing.T) {
		resourceID := NewResourceID(target, chainID)

		// trailing 6 bytes are chain type (2 BE) || chain id (4 BE)
		require.Equal(t, byte(0x01), resourceID[26])
		require.Equal(t, byte(0x00), resourceID[27])
		require.Equal(t, byte(0x00), resourceID[28])
		require.Equal(t, byte(0x00), resourceID[29])
		require.Equal(t, byte(0x13), resourceID[30])
		require.Equal(t, byte(0x89), resourceID[31])
	})

	t.Run("TestResourceIDRoundTrip", func(t *testing.T) {
		resourceID := NewResourceID(target, chainID)

		parsed, err := ResourceIDFromHex(resourceID.String())
		require.NoError(t, err)
		require.Equal(t, resourceID, parsed)
	})

	t.Run("TestResourceIDFromBytesInvalid", func(t *testing.T) {
		_, err := ResourceIDFromBytes(make([]byte, 31))
		require.Error(t, err)
	})
}

func TestProposalHeader(t *testing.T) {
	resourceID := NewResourceID(
		ethcommon.HexToAddress("0x91eB86019FD8D7c5d9605b6FD723341159c9CEA3"),
		common.NewEVMChainID(5002),
	)
	header := ProposalHeader{
		ResourceID:        resourceID,
		FunctionSignature: FunctionSignature{0xde, 0xad, 0xbe, 0xef},
		Nonce:             42,
	}

	t.Run("TestHeaderBytes", func(t *testing.T) {
		data := header.Bytes()
		require.Len(t, data[:], ProposalHeaderSize)
		require.Equal(t, resourceID[:], data[:32])
		require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data[32:36])
		require.Equal(t, []byte{0x00, 0x00, 0x00, 0x2a}, data[36:40])
	})

	t.Run("TestHeaderRoundTrip", func(t *testing.T) {
		data := header.Bytes()

		parsed, err := ProposalHeaderFromBytes(data[:])
		require.NoError(t, err)
		require.Equal(t, header, parsed)
	})

	t.Run("TestHeaderTooShort", func(t *testing.T) {
		_, err := ProposalHeaderFromBytes(make([]byte, ProposalHeaderSize-1))
		require.Error(t, err)
	})
}

func TestAnchorUpdateProposal(t *testing.T) {
	srcResourceID := NewResourceID(
		ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.NewEVMChainID(5001),
	)
	dstResourceID := NewResourceID(
		ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.NewEVMChainID(5002),
	)
	header := ProposalHeader{
		ResourceID:        dstResourceID,
		FunctionSignature: FunctionSignature{0x01, 0x02, 0x03, 0x04},
		Nonce:             7,
	}

	merkleRoot := [32]byte{0xaa, 0xbb}

	proposal := NewAnchorUpdateProposal(header, merkleRoot, srcResourceID)

	t.Run("TestWireLength", func(t *testing.T) {
		require.Len(t, proposal.Bytes(), ProposalHeaderSize+anchorUpdateBodySize)
	})

	t.Run("TestBodyLayout", func(t *testing.T) {
		data := proposal.Bytes()
		require.Equal(t, merkleRoot[:], data[ProposalHeaderSize:ProposalHeaderSize+32])
		require.Equal(t, srcResourceID[:], data[ProposalHeaderSize+32:])
	})

	t.Run("TestMerkleRoot", func(t *testing.T) {
		root, err := proposal.MerkleRoot()
		require.NoError(t, err)
		require.Equal(t, merkleRoot, root)
	})

	t.Run("TestRoundTrip", func(t *testing.T) {
		parsed, err := UnsignedProposalFromBytes(ProposalAnchorUpdate, proposal.Bytes())
		require.NoError(t, err)
		require.Equal(t, proposal.Header, parsed.Header)
		require.Equal(t, proposal.Body, parsed.Body)
	})

	t.Run("TestHashStable", func(t *testing.T) {
		require.Equal(t, proposal.Hash(), proposal.Hash())

		other := NewAnchorUpdateProposal(header, [32]byte{0xcc}, srcResourceID)
		require.NotEqual(t, proposal.Hash(), other.Hash())
	})

	t.Run("TestSignedProposalBytes", func(t *testing.T) {
		signature := make([]byte, 65)
		signature[64] = 27

		signed := &SignedProposal{Proposal: proposal, Signature: signature}
		require.Equal(t, append(proposal.Bytes(), signature...), signed.Bytes())
	})
}
