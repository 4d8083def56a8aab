package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
)

const (
	receiptPollInterval = 500 * time.Millisecond
	defaultGasLimit     = uint64(5_242_880)
)

// TxSender signs and submits raw transactions with the relayer account of
// one evm chain. The tx queue consumer is its only caller, which keeps
// nonce ownership in a single task.
type TxSender struct {
	client  *Client
	key     *ecdsa.PrivateKey
	address ethcommon.Address
	chainID *big.Int
	nonce   NonceStrategy
	logger  hclog.Logger
	mutex   sync.Mutex
}

func NewTxSender(client *Client, privateKeyHex string, logger hclog.Logger) (*TxSender, error) {
	keyBytes, err := common.DecodeHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}

	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}

	return &TxSender{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(client.ChainID().ID),
		nonce:   NewCombinedNonceStrategy(),
		logger:  logger.Named("tx_sender").With("chain", client.ChainID().String()),
	}, nil
}

func (s *TxSender) Address() ethcommon.Address {
	return s.address
}

func (s *TxSender) EstimateGas(ctx context.Context, to ethcommon.Address, calldata []byte) (uint64, error) {
	gas, err := s.client.EthClient().EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &to,
		Data: calldata,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}

	return gas, nil
}

func (s *TxSender) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return s.client.GasPrice(ctx)
}

func (s *TxSender) Balance(ctx context.Context) (*big.Int, error) {
	return s.client.Balance(ctx, s.address)
}

// Submit signs calldata into a legacy transaction and sends it. Returns
// the hash and the nonce used.
func (s *TxSender) Submit(
	ctx context.Context, to ethcommon.Address, calldata []byte, gasLimit uint64, gasPrice *big.Int,
) (string, uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ethClient := s.client.EthClient()

	nonce, err := s.nonce.GetNextNonce(ctx, ethClient, s.address)
	if err != nil {
		return "", 0, common.NewRetryableError(err)
	}

	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign tx: %w", err)
	}

	if err := ethClient.SendTransaction(ctx, signedTx); err != nil {
		s.nonce.UpdateNonce(s.address, nonce, false)

		return "", 0, classifySubmitError(err)
	}

	s.nonce.UpdateNonce(s.address, nonce, true)

	return signedTx.Hash().String(), nonce, nil
}

// WaitFinalized blocks until the receipt exists and the head has advanced
// past it by the configured confirmations.
func (s *TxSender) WaitFinalized(ctx context.Context, hash string, confirmations uint64) error {
	txHash := ethcommon.HexToHash(hash)

	var receipt *types.Receipt

	for receipt == nil {
		r, err := s.client.EthClient().TransactionReceipt(ctx, txHash)
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return common.NewRetryableError(fmt.Errorf("receipt lookup failed: %w", err))
		}

		if r != nil {
			receipt = r

			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", hash)
	}

	targetBlock := receipt.BlockNumber.Uint64() + confirmations

	for {
		head, err := s.client.LatestBlock(ctx)
		if err != nil {
			return err
		}

		if head >= targetBlock {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// classifySubmitError separates conditions the queue can recover from by
// resyncing the nonce or bumping the gas price.
func classifySubmitError(err error) error {
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"nonce too low", "replacement transaction underpriced",
		"transaction underpriced", "already known",
		"connection refused", "eof", "context deadline exceeded",
	} {
		if strings.Contains(msg, marker) {
			return common.NewRetryableError(err)
		}
	}

	return err
}
