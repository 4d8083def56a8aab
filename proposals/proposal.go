package proposals

import (
	"encoding/binary"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	FunctionSignatureSize = 4
	ProposalHeaderSize    = ResourceIDSize + FunctionSignatureSize + 4

	anchorUpdateBodySize = 32 + ResourceIDSize
)

// FunctionSignature is the 4 byte selector of the target function the
// proposal executes once verified.
type FunctionSignature [FunctionSignatureSize]byte

// ProposalKind tags the payload carried after the header.
type ProposalKind uint8

const (
	ProposalAnchorUpdate ProposalKind = iota
	ProposalTokenAdd
	ProposalTokenRemove
	ProposalWrappingFeeUpdate
	ProposalResourceIDUpdate
)

func (k ProposalKind) String() string {
	switch k {
	case ProposalAnchorUpdate:
		return "AnchorUpdate"
	case ProposalTokenAdd:
		return "TokenAdd"
	case ProposalTokenRemove:
		return "TokenRemove"
	case ProposalWrappingFeeUpdate:
		return "WrappingFeeUpdate"
	case ProposalResourceIDUpdate:
		return "ResourceIdUpdate"
	default:
		return "Unknown"
	}
}

// ProposalHeader is the fixed 40 byte prefix of every proposal:
// resource id (32) || function signature (4) || nonce (4 BE).
type ProposalHeader struct {
	ResourceID        ResourceID
	FunctionSignature FunctionSignature
	Nonce             uint32
}

func (h ProposalHeader) Bytes() [ProposalHeaderSize]byte {
	var result [ProposalHeaderSize]byte

	copy(result[:ResourceIDSize], h.ResourceID[:])
	copy(result[ResourceIDSize:ResourceIDSize+FunctionSignatureSize], h.FunctionSignature[:])
	binary.BigEndian.PutUint32(result[ResourceIDSize+FunctionSignatureSize:], h.Nonce)

	return result
}

func ProposalHeaderFromBytes(data []byte) (ProposalHeader, error) {
	if len(data) < ProposalHeaderSize {
		return ProposalHeader{}, fmt.Errorf("proposal too short for header: %d", len(data))
	}

	resourceID, err := ResourceIDFromBytes(data[:ResourceIDSize])
	if err != nil {
		return ProposalHeader{}, err
	}

	return ProposalHeader{
		ResourceID:        resourceID,
		FunctionSignature: FunctionSignature(data[ResourceIDSize : ResourceIDSize+FunctionSignatureSize]),
		Nonce:             binary.BigEndian.Uint32(data[ResourceIDSize+FunctionSignatureSize : ProposalHeaderSize]),
	}, nil
}

// UnsignedProposal is a header followed by a variant specific body. The
// body stays opaque bytes after construction so that the wire form is the
// source of truth.
type UnsignedProposal struct {
	Kind   ProposalKind
	Header ProposalHeader
	Body   []byte
}

// NewAnchorUpdateProposal builds a proposal whose body is
// merkle root (32) || source resource id (32).
func NewAnchorUpdateProposal(
	header ProposalHeader, merkleRoot [32]byte, srcResourceID ResourceID,
) *UnsignedProposal {
	body := make([]byte, 0, anchorUpdateBodySize)
	body = append(body, merkleRoot[:]...)
	body = append(body, srcResourceID[:]...)

	return &UnsignedProposal{
		Kind:   ProposalAnchorUpdate,
		Header: header,
		Body:   body,
	}
}

func NewRawProposal(kind ProposalKind, header ProposalHeader, body []byte) *UnsignedProposal {
	return &UnsignedProposal{
		Kind:   kind,
		Header: header,
		Body:   body,
	}
}

func UnsignedProposalFromBytes(kind ProposalKind, data []byte) (*UnsignedProposal, error) {
	header, err := ProposalHeaderFromBytes(data)
	if err != nil {
		return nil, err
	}

	if kind == ProposalAnchorUpdate && len(data) != ProposalHeaderSize+anchorUpdateBodySize {
		return nil, fmt.Errorf("invalid anchor update proposal length: %d", len(data))
	}

	return &UnsignedProposal{
		Kind:   kind,
		Header: header,
		Body:   append([]byte{}, data[ProposalHeaderSize:]...),
	}, nil
}

func (p *UnsignedProposal) Bytes() []byte {
	header := p.Header.Bytes()

	result := make([]byte, 0, len(header)+len(p.Body))
	result = append(result, header[:]...)
	result = append(result, p.Body...)

	return result
}

// Hash is the keccak256 of the wire bytes, used both as the value signed
// by the mocked backend and as the dkg correlation key.
func (p *UnsignedProposal) Hash() ethcommon.Hash {
	return ethcommon.BytesToHash(crypto.Keccak256(p.Bytes()))
}

// MerkleRoot returns the root carried by an anchor update body.
func (p *UnsignedProposal) MerkleRoot() ([32]byte, error) {
	if p.Kind != ProposalAnchorUpdate || len(p.Body) != anchorUpdateBodySize {
		return [32]byte{}, fmt.Errorf("proposal %s carries no merkle root", p.Kind)
	}

	return [32]byte(p.Body[:32]), nil
}

// SignedProposal is the unsigned wire bytes followed by the signature.
// EVM signatures are 65 bytes r||s||v; dkg signatures are whatever the dkg
// pallet produced.
type SignedProposal struct {
	Proposal  *UnsignedProposal
	Signature []byte
}

func (sp *SignedProposal) Bytes() []byte {
	proposalBytes := sp.Proposal.Bytes()

	result := make([]byte, 0, len(proposalBytes)+len(sp.Signature))
	result = append(result, proposalBytes...)
	result = append(result, sp.Signature...)

	return result
}
