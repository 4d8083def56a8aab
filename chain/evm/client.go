package evm

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-hclog"
)

// Client is the evm chain back end: json-rpc over http, with the
// connection re-established on demand after failures.
type Client struct {
	chainID common.ChainID
	config  *relayerconfig.EVMChainConfig
	logger  hclog.Logger

	client *ethclient.Client
	mutex  sync.Mutex
}

var _ core.Client = (*Client)(nil)

func NewClient(config *relayerconfig.EVMChainConfig, logger hclog.Logger) (*Client, error) {
	client, err := ethclient.Dial(config.HTTPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.HTTPEndpoint, err)
	}

	return &Client{
		chainID: common.NewEVMChainID(config.ChainID),
		config:  config,
		logger:  logger.Named("evm_client").With("chain", config.Name),
		client:  client,
	}, nil
}

func (c *Client) ChainID() common.ChainID {
	return c.chainID
}

// EthClient exposes the underlying connection for the tx sender, which
// shares the reconnect behavior.
func (c *Client) EthClient() *ethclient.Client {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.client
}

func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	block, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, c.reconnectOnError(fmt.Errorf("failed to get latest block: %w", err))
	}

	return block, nil
}

func (c *Client) FetchEvents(
	ctx context.Context, from, to uint64, filter core.EventFilter,
) ([]*core.Event, error) {
	address := ethcommon.HexToAddress(filter.Target)

	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{address},
		Topics:    [][]ethcommon.Hash{{newCommitmentTopic}},
	})
	if err != nil {
		return nil, c.reconnectOnError(fmt.Errorf("failed to filter logs: %w", err))
	}

	events := make([]*core.Event, 0, len(logs))

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}

		if !filter.Matches(core.EventKindNewCommitment) {
			continue
		}

		decoded, err := unpackNewCommitment(log)
		if err != nil {
			return nil, common.NewProtocolError(
				fmt.Sprintf("malformed NewCommitment log at block %d", log.BlockNumber), err)
		}

		root, err := c.GetLastRoot(ctx, address)
		if err != nil {
			return nil, err
		}

		events = append(events, &core.Event{
			ChainID:     c.chainID,
			Target:      filter.Target,
			Kind:        core.EventKindNewCommitment,
			BlockNumber: log.BlockNumber,
			LogIndex:    log.Index,
			NewCommitment: &core.NewCommitmentEvent{
				Commitment:      decoded.Commitment,
				LeafIndex:       decoded.LeafIndex,
				LeafIndexKnown:  true,
				Root:            root,
				EncryptedOutput: decoded.EncryptedOutput,
			},
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}

		return events[i].LogIndex < events[j].LogIndex
	})

	return events, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, c.reconnectOnError(fmt.Errorf("failed to get gas price: %w", err))
	}

	return price, nil
}

// GetLastRoot reads the anchor's current merkle root.
func (c *Client) GetLastRoot(ctx context.Context, anchor ethcommon.Address) ([32]byte, error) {
	calldata, err := vanchorABI.Pack("getLastRoot")
	if err != nil {
		return [32]byte{}, err
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &anchor, Data: calldata}, nil)
	if err != nil {
		return [32]byte{}, c.reconnectOnError(fmt.Errorf("getLastRoot call failed: %w", err))
	}

	values, err := vanchorABI.Unpack("getLastRoot", result)
	if err != nil || len(values) != 1 {
		return [32]byte{}, common.NewProtocolError("malformed getLastRoot result", err)
	}

	root, ok := values[0].([32]byte)
	if !ok {
		return [32]byte{}, common.NewProtocolError(fmt.Sprintf("unexpected root type %T", values[0]), nil)
	}

	return root, nil
}

func (c *Client) Balance(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, c.reconnectOnError(fmt.Errorf("failed to get balance: %w", err))
	}

	return balance, nil
}

func (c *Client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.client.Close()
}

// reconnectOnError re-dials so the next call starts from a fresh
// connection, and wraps the original error as retryable for the caller's
// backoff loop.
func (c *Client) reconnectOnError(err error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if client, dialErr := ethclient.Dial(c.config.HTTPEndpoint); dialErr == nil {
		c.client.Close()
		c.client = client
	} else {
		c.logger.Debug("reconnect failed", "err", dialErr)
	}

	return common.NewRetryableError(err)
}
