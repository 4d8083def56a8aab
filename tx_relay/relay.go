package txrelay

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/evm"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
)

// Enqueuer is the queue surface the relay hands validated withdrawals to.
type Enqueuer interface {
	Enqueue(item *relayerstore.TxQueueItem) (string, bool, error)
}

// WithdrawExtData is the client-declared view of the extData the proof
// commits to; the raw bytes travel separately and are hash checked.
type WithdrawExtData struct {
	Recipient string `json:"recipient"`
	Relayer   string `json:"relayer"`
	Fee       string `json:"fee"`
	Refund    string `json:"refund"`
}

// WithdrawRequest is a user withdrawal with a zero knowledge proof,
// relayed by us in exchange for the quoted fee.
type WithdrawRequest struct {
	Proof        string          `json:"proof"`
	PublicInputs string          `json:"publicInputs"`
	ExtDataBytes string          `json:"extDataBytes"`
	ExtDataHash  string          `json:"extDataHash"`
	ExtData      WithdrawExtData `json:"extData"`
}

// RelayService validates withdraw submissions and enqueues them for a
// chain's tx queue.
type RelayService struct {
	appConfig *relayerconfig.AppConfig
	oracles   map[uint64]*FeeOracle
	queues    map[common.ChainID]Enqueuer
	relayers  map[uint64]ethcommon.Address
	logger    hclog.Logger
}

func NewRelayService(
	appConfig *relayerconfig.AppConfig,
	oracles map[uint64]*FeeOracle,
	queues map[common.ChainID]Enqueuer,
	relayers map[uint64]ethcommon.Address,
	logger hclog.Logger,
) *RelayService {
	return &RelayService{
		appConfig: appConfig,
		oracles:   oracles,
		queues:    queues,
		relayers:  relayers,
		logger:    logger.Named("tx_relay"),
	}
}

// Oracle exposes the per-chain fee oracle for the api layer.
func (s *RelayService) Oracle(chainID uint64) *FeeOracle {
	return s.oracles[chainID]
}

// SubmitWithdrawEVM validates the request against the live quote and
// enqueues the transact call. Returns the queue item id for status
// streaming.
func (s *RelayService) SubmitWithdrawEVM(
	_ context.Context, chainID uint64, contract string, request *WithdrawRequest,
) (string, error) {
	if !s.appConfig.Features.PrivateTxRelay {
		return "", fmt.Errorf("private tx relay is not enabled")
	}

	chainConfig := s.appConfig.EVMChainByID(chainID)
	if chainConfig == nil || !chainConfig.Enabled {
		return "", fmt.Errorf("unsupported chain: %d", chainID)
	}

	relayer, exists := s.relayers[chainID]
	if !exists {
		return "", fmt.Errorf("no relayer account for chain %d", chainID)
	}

	if !strings.EqualFold(request.ExtData.Relayer, relayer.Hex()) {
		return "", fmt.Errorf("extData.relayer %s is not this relayer", request.ExtData.Relayer)
	}

	oracle := s.oracles[chainID]
	if oracle == nil {
		return "", fmt.Errorf("no fee oracle for chain %d", chainID)
	}

	quote := oracle.LastQuote(contract)
	if quote == nil {
		return "", fmt.Errorf("no live fee quote for %s; request one first", contract)
	}

	fee, ok := new(big.Int).SetString(request.ExtData.Fee, 10)
	if !ok {
		return "", fmt.Errorf("invalid fee value %q", request.ExtData.Fee)
	}

	if fee.Cmp(quote.EstimatedFee) < 0 {
		return "", fmt.Errorf("fee %s below quoted %s", fee, quote.EstimatedFee)
	}

	refund, ok := new(big.Int).SetString(request.ExtData.Refund, 10)
	if !ok {
		return "", fmt.Errorf("invalid refund value %q", request.ExtData.Refund)
	}

	if refund.Cmp(quote.MaxRefund) > 0 {
		return "", fmt.Errorf("refund %s above quoted maximum %s", refund, quote.MaxRefund)
	}

	extDataBytes, err := common.DecodeHex(request.ExtDataBytes)
	if err != nil {
		return "", fmt.Errorf("invalid extData bytes: %w", err)
	}

	extDataHash, err := common.DecodeHex(request.ExtDataHash)
	if err != nil || len(extDataHash) != 32 {
		return "", fmt.Errorf("invalid extData hash")
	}

	if [32]byte(crypto.Keccak256(extDataBytes)) != [32]byte(extDataHash) {
		return "", fmt.Errorf("extData hash does not match extData bytes")
	}

	proof, err := common.DecodeHex(request.Proof)
	if err != nil {
		return "", fmt.Errorf("invalid proof: %w", err)
	}

	publicInputs, err := common.DecodeHex(request.PublicInputs)
	if err != nil {
		return "", fmt.Errorf("invalid public inputs: %w", err)
	}

	calldata, err := evm.PackTransact(proof, publicInputs, extDataBytes)
	if err != nil {
		return "", fmt.Errorf("failed to pack transact call: %w", err)
	}

	targetChain := common.NewEVMChainID(chainID)

	queue, exists := s.queues[targetChain]
	if !exists {
		return "", fmt.Errorf("no tx queue for chain %d", chainID)
	}

	gasLimit := uint64(0)

	if wc := withdrawConfigFor(chainConfig, contract); wc != nil && wc.WithdrawGaslimitHex != "" {
		if limit, ok := new(big.Int).SetString(strings.TrimPrefix(wc.WithdrawGaslimitHex, "0x"), 16); ok {
			gasLimit = limit.Uint64()
		}
	}

	id, _, err := queue.Enqueue(&relayerstore.TxQueueItem{
		ChainID:  targetChain,
		Kind:     relayerstore.TxKindPrivateWithdraw,
		To:       contract,
		Calldata: calldata,
		GasLimit: gasLimit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue withdrawal: %w", err)
	}

	s.logger.Info("withdrawal accepted", "chain", chainID, "contract", contract, "id", id)

	return id, nil
}

func withdrawConfigFor(chainConfig *relayerconfig.EVMChainConfig, contract string) *relayerconfig.WithdrawConfig {
	for i := range chainConfig.Contracts {
		if strings.EqualFold(chainConfig.Contracts[i].Address, contract) {
			return chainConfig.Contracts[i].WithdrawConfig
		}
	}

	return nil
}
