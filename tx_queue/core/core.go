package core

import (
	"context"
	"math/big"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
)

// Submitter is the chain-specific submission capability used by one queue
// consumer. Implementations wrap the evm tx sender or the substrate
// client; retryable failures are wrapped as common.RetryableError.
type Submitter interface {
	EstimateGas(ctx context.Context, item *relayerstore.TxQueueItem) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Submit(ctx context.Context, item *relayerstore.TxQueueItem, gasPrice *big.Int) (string, error)
	WaitFinalized(ctx context.Context, txHash string) error
}

type QueueConfig struct {
	ChainID          common.ChainID
	PollingInterval  time.Duration
	MaxSleepInterval time.Duration
	Confirmations    uint64
	// ExpectedBlockTime bounds the finalization wait at
	// confirmations * block time * 3.
	ExpectedBlockTime time.Duration
}

func (c *QueueConfig) ApplyDefaults() {
	if c.PollingInterval == 0 {
		c.PollingInterval = 7 * time.Second
	}

	if c.MaxSleepInterval == 0 {
		c.MaxSleepInterval = 10 * time.Second
	}

	if c.ExpectedBlockTime == 0 {
		c.ExpectedBlockTime = 12 * time.Second
	}

	if c.Confirmations == 0 {
		c.Confirmations = 1
	}
}

func (c *QueueConfig) FinalizationTimeout() time.Duration {
	return time.Duration(c.Confirmations) * c.ExpectedBlockTime * 3
}

type TxQueue interface {
	// Enqueue persists the item and returns its id. Items with a dedup
	// key collapse onto the already queued submission.
	Enqueue(item *relayerstore.TxQueueItem) (string, bool, error)
	Start(ctx context.Context) error
}
