package txqueue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/evm"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/substrate"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue/core"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// EVMSubmitter adapts the evm tx sender to the queue consumer.
type EVMSubmitter struct {
	sender        *evm.TxSender
	confirmations uint64
}

var _ core.Submitter = (*EVMSubmitter)(nil)

func NewEVMSubmitter(sender *evm.TxSender, confirmations uint64) *EVMSubmitter {
	return &EVMSubmitter{
		sender:        sender,
		confirmations: confirmations,
	}
}

func (s *EVMSubmitter) EstimateGas(ctx context.Context, item *relayerstore.TxQueueItem) (uint64, error) {
	return s.sender.EstimateGas(ctx, ethcommon.HexToAddress(item.To), item.Calldata)
}

func (s *EVMSubmitter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return s.sender.SuggestGasPrice(ctx)
}

func (s *EVMSubmitter) Submit(
	ctx context.Context, item *relayerstore.TxQueueItem, gasPrice *big.Int,
) (string, error) {
	hash, _, err := s.sender.Submit(
		ctx, ethcommon.HexToAddress(item.To), item.Calldata, item.GasLimit, gasPrice)

	return hash, err
}

func (s *EVMSubmitter) WaitFinalized(ctx context.Context, txHash string) error {
	return s.sender.WaitFinalized(ctx, txHash, s.confirmations)
}

// substrateExecutePayload is the queue-side encoding of an extrinsic's
// arguments; the call name travels in the item's To field.
type substrateExecutePayload struct {
	Data      []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// SubstrateSubmitter adapts the substrate client. Submission and
// finality are a single step: the client watches the extrinsic until the
// finality gadget includes it.
type SubstrateSubmitter struct {
	client *substrate.Client
}

var _ core.Submitter = (*SubstrateSubmitter)(nil)

func NewSubstrateSubmitter(client *substrate.Client) *SubstrateSubmitter {
	return &SubstrateSubmitter{client: client}
}

func (s *SubstrateSubmitter) EstimateGas(_ context.Context, _ *relayerstore.TxQueueItem) (uint64, error) {
	// weight is computed by the runtime
	return 1, nil
}

func (s *SubstrateSubmitter) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *SubstrateSubmitter) Submit(
	ctx context.Context, item *relayerstore.TxQueueItem, _ *big.Int,
) (string, error) {
	var payload substrateExecutePayload

	if err := cbor.Unmarshal(item.Calldata, &payload); err != nil {
		return "", fmt.Errorf("malformed substrate payload: %w", err)
	}

	return s.client.SubmitCall(ctx, item.To, payload.Data, payload.Signature)
}

func (s *SubstrateSubmitter) WaitFinalized(_ context.Context, _ string) error {
	// finality was already awaited during Submit
	return nil
}
