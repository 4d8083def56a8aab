package txqueue

import (
	"encoding/binary"
	"fmt"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/evm"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/fxamacker/cbor/v2"
)

const substrateExecuteCall = "SignatureBridge.execute_proposal"

// GovernanceDedupKey is resource id || nonce: at most one governance
// submission per (resource, nonce) may be active in a queue.
func GovernanceDedupKey(resource proposals.ResourceID, nonce uint32) []byte {
	key := make([]byte, 0, len(resource)+4)
	key = append(key, resource[:]...)
	key = binary.BigEndian.AppendUint32(key, nonce)

	return key
}

// BuildExecuteProposalItem turns a signed proposal into the queue item
// that executes it on its target chain's signature bridge.
func BuildExecuteProposalItem(signed *proposals.SignedProposal) (*relayerstore.TxQueueItem, error) {
	resource := signed.Proposal.Header.ResourceID

	targetChain, err := resource.TargetChainID()
	if err != nil {
		return nil, fmt.Errorf("proposal with invalid target chain: %w", err)
	}

	item := &relayerstore.TxQueueItem{
		ChainID:  targetChain,
		Kind:     relayerstore.TxKindExecuteProposal,
		DedupKey: GovernanceDedupKey(resource, signed.Proposal.Header.Nonce),
		State:    relayerstore.TxStatePending,
	}

	switch targetChain.Type {
	case common.ChainTypeEVM:
		calldata, err := evm.PackExecuteProposalWithSignature(signed.Proposal.Bytes(), signed.Signature)
		if err != nil {
			return nil, fmt.Errorf("failed to pack execute proposal: %w", err)
		}

		item.To = resource.TargetAddress().Hex()
		item.Calldata = calldata
	case common.ChainTypeSubstrate:
		payload, err := cbor.Marshal(substrateExecutePayload{
			Data:      signed.Proposal.Bytes(),
			Signature: signed.Signature,
		})
		if err != nil {
			return nil, err
		}

		item.To = substrateExecuteCall
		item.Calldata = payload
	default:
		return nil, fmt.Errorf("unsupported target chain type %s", targetChain.Type)
	}

	return item, nil
}
