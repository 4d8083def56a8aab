package proposals

import (
	"encoding/hex"
	"fmt"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const ResourceIDSize = 32

// ResourceID is the 32 byte canonical on-chain identifier of a bridged
// target: target address (20) || target fn sig or zero (6) || chain type (2)
// || chain id (4). This module never reinterprets the first 26 bytes.
type ResourceID [ResourceIDSize]byte

// NewResourceID builds a resource id for an EVM contract target.
func NewResourceID(target ethcommon.Address, chainID common.ChainID) ResourceID {
	var result ResourceID

	copy(result[:20], target.Bytes())

	chainIDBytes := chainID.Bytes()
	copy(result[26:], chainIDBytes[:])

	return result
}

// NewSubstrateResourceID builds a resource id for a substrate pallet target.
func NewSubstrateResourceID(palletIndex uint8, callIndex uint8, treeID uint32, chainID common.ChainID) ResourceID {
	var result ResourceID

	result[20] = palletIndex
	result[21] = callIndex
	result[22] = byte(treeID >> 24)
	result[23] = byte(treeID >> 16)
	result[24] = byte(treeID >> 8)
	result[25] = byte(treeID)

	chainIDBytes := chainID.Bytes()
	copy(result[26:], chainIDBytes[:])

	return result
}

func ResourceIDFromBytes(data []byte) (ResourceID, error) {
	if len(data) != ResourceIDSize {
		return ResourceID{}, fmt.Errorf("invalid resource id length: %d", len(data))
	}

	return ResourceID(data), nil
}

func ResourceIDFromHex(s string) (ResourceID, error) {
	data, err := common.DecodeHex(s)
	if err != nil {
		return ResourceID{}, fmt.Errorf("invalid resource id hex: %w", err)
	}

	return ResourceIDFromBytes(data)
}

// TargetChainID extracts the chain id encoded in the trailing 6 bytes.
func (r ResourceID) TargetChainID() (common.ChainID, error) {
	return common.ChainIDFromBytes(r[26:])
}

// TargetAddress returns the first 20 bytes as an EVM address. Only
// meaningful when the target chain type is EVM.
func (r ResourceID) TargetAddress() ethcommon.Address {
	return ethcommon.BytesToAddress(r[:20])
}

func (r ResourceID) String() string {
	return "0x" + hex.EncodeToString(r[:])
}
