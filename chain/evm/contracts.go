package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const vanchorABIJSON = `[
	{"type":"event","name":"NewCommitment","inputs":[
		{"name":"commitment","type":"bytes32","indexed":false},
		{"name":"leafIndex","type":"uint256","indexed":false},
		{"name":"encryptedOutput","type":"bytes","indexed":false}
	],"anonymous":false},
	{"type":"function","name":"getLastRoot","stateMutability":"view",
		"inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"transact","stateMutability":"payable","inputs":[
		{"name":"proof","type":"bytes"},
		{"name":"publicInputs","type":"bytes"},
		{"name":"extData","type":"bytes"}
	],"outputs":[]}
]`

const signatureBridgeABIJSON = `[
	{"type":"function","name":"executeProposalWithSignature","stateMutability":"nonpayable","inputs":[
		{"name":"data","type":"bytes"},
		{"name":"signature","type":"bytes"}
	],"outputs":[]}
]`

var (
	vanchorABI         abi.ABI
	signatureBridgeABI abi.ABI

	newCommitmentTopic ethcommon.Hash
)

func init() {
	var err error

	vanchorABI, err = abi.JSON(strings.NewReader(vanchorABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid vanchor abi: %v", err))
	}

	signatureBridgeABI, err = abi.JSON(strings.NewReader(signatureBridgeABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid signature bridge abi: %v", err))
	}

	newCommitmentTopic = vanchorABI.Events["NewCommitment"].ID
}

// PackExecuteProposalWithSignature builds the calldata executed on a
// signature bridge once a proposal carries a valid signature.
func PackExecuteProposalWithSignature(data, signature []byte) ([]byte, error) {
	return signatureBridgeABI.Pack("executeProposalWithSignature", data, signature)
}

// PackTransact builds the vanchor withdrawal calldata submitted on behalf
// of a user.
func PackTransact(proof, publicInputs, extData []byte) ([]byte, error) {
	return vanchorABI.Pack("transact", proof, publicInputs, extData)
}

type newCommitmentLog struct {
	Commitment      [32]byte
	LeafIndex       uint64
	EncryptedOutput []byte
}

func unpackNewCommitment(log *types.Log) (*newCommitmentLog, error) {
	values, err := vanchorABI.Unpack("NewCommitment", log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack NewCommitment: %w", err)
	}

	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected NewCommitment arity: %d", len(values))
	}

	commitment, ok := values[0].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected commitment type %T", values[0])
	}

	leafIndex, err := abiUint64(values[1])
	if err != nil {
		return nil, err
	}

	encryptedOutput, ok := values[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected encryptedOutput type %T", values[2])
	}

	return &newCommitmentLog{
		Commitment:      commitment,
		LeafIndex:       leafIndex,
		EncryptedOutput: encryptedOutput,
	}, nil
}

func abiUint64(value any) (uint64, error) {
	bigValue, ok := value.(interface{ Uint64() uint64 })
	if !ok {
		return 0, fmt.Errorf("unexpected numeric type %T", value)
	}

	return bigValue.Uint64(), nil
}
