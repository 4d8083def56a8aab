package common

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

type ChainType uint16

const (
	ChainTypeEVM       ChainType = 0x0100
	ChainTypeSubstrate ChainType = 0x0200

	ChainTypeEVMStr       = "evm"
	ChainTypeSubstrateStr = "substrate"

	ChainIDWireSize = 6
)

func (ct ChainType) String() string {
	switch ct {
	case ChainTypeEVM:
		return ChainTypeEVMStr
	case ChainTypeSubstrate:
		return ChainTypeSubstrateStr
	default:
		return "unknown"
	}
}

// ChainID identifies a chain by its type and its underlying numeric id.
// The wire form is chain type (2 bytes BE) followed by the id (4 bytes BE),
// the same 6 bytes that terminate a resource id.
type ChainID struct {
	Type ChainType
	ID   uint64
}

func NewEVMChainID(id uint64) ChainID {
	return ChainID{Type: ChainTypeEVM, ID: id}
}

func NewSubstrateChainID(id uint64) ChainID {
	return ChainID{Type: ChainTypeSubstrate, ID: id}
}

func (c ChainID) Bytes() [ChainIDWireSize]byte {
	var result [ChainIDWireSize]byte

	binary.BigEndian.PutUint16(result[:2], uint16(c.Type))
	binary.BigEndian.PutUint32(result[2:], uint32(c.ID)) //nolint:gosec

	return result
}

func ChainIDFromBytes(data []byte) (ChainID, error) {
	if len(data) != ChainIDWireSize {
		return ChainID{}, fmt.Errorf("invalid chain id length: %d", len(data))
	}

	chainType := ChainType(binary.BigEndian.Uint16(data[:2]))
	if chainType != ChainTypeEVM && chainType != ChainTypeSubstrate {
		return ChainID{}, fmt.Errorf("unknown chain type: 0x%04x", uint16(chainType))
	}

	return ChainID{
		Type: chainType,
		ID:   uint64(binary.BigEndian.Uint32(data[2:])),
	}, nil
}

func (c ChainID) String() string {
	return fmt.Sprintf("%s:%d", c.Type, c.ID)
}

// UnderlyingStr returns the bare numeric id, the form used in api paths
// and emitted events.
func (c ChainID) UnderlyingStr() string {
	return strconv.FormatUint(c.ID, 10)
}

func (c ChainID) IsEVM() bool {
	return c.Type == ChainTypeEVM
}

func (c ChainID) IsSubstrate() bool {
	return c.Type == ChainTypeSubstrate
}
