package substrate

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	regstate "github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/hashicorp/go-hclog"
)

const (
	proposalSignedEventName = "DKGProposalHandler.ProposalSigned"
	transactionEventSuffix  = ".Transaction"

	submitUnsignedProposalCall = "DKGProposalHandler.submit_unsigned_proposal"
)

// Client is the substrate chain back end, built on the rpc client plus
// the metadata-driven event registry.
type Client struct {
	chainID common.ChainID
	config  *relayerconfig.SubstrateChainConfig
	logger  hclog.Logger

	api       *gsrpc.SubstrateAPI
	retriever retriever.EventRetriever
	keyring   *signature.KeyringPair
	mutex     sync.Mutex
}

var _ core.Client = (*Client)(nil)

func NewClient(config *relayerconfig.SubstrateChainConfig, logger hclog.Logger) (*Client, error) {
	// extrinsic watching needs the websocket endpoint when one is configured
	endpoint := config.WSEndpoint
	if endpoint == "" {
		endpoint = config.HTTPEndpoint
	}

	api, err := gsrpc.NewSubstrateAPI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	eventRetriever, err := retriever.NewDefaultEventRetriever(
		regstate.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		return nil, fmt.Errorf("failed to create event retriever: %w", err)
	}

	client := &Client{
		chainID:   common.NewSubstrateChainID(config.ChainID),
		config:    config,
		logger:    logger.Named("substrate_client").With("chain", config.Name),
		api:       api,
		retriever: eventRetriever,
	}

	if config.PrivateKey != "" {
		keyring, err := signature.KeyringPairFromSecret(config.PrivateKey, 42)
		if err != nil {
			return nil, fmt.Errorf("invalid substrate key: %w", err)
		}

		client.keyring = &keyring
	}

	return client, nil
}

func (c *Client) ChainID() common.ChainID {
	return c.chainID
}

func (c *Client) LatestBlock(_ context.Context) (uint64, error) {
	header, err := c.api.RPC.Chain.GetHeaderLatest()
	if err != nil {
		return 0, common.NewRetryableError(fmt.Errorf("failed to get latest header: %w", err))
	}

	return uint64(header.Number), nil
}

// FinalizedBlock is the height of the chain's finality gadget. Falls back
// to the caller's confirmation arithmetic if the gadget is unavailable.
func (c *Client) FinalizedBlock(_ context.Context) (uint64, error) {
	hash, err := c.api.RPC.Chain.GetFinalizedHead()
	if err != nil {
		return 0, common.NewRetryableError(fmt.Errorf("failed to get finalized head: %w", err))
	}

	header, err := c.api.RPC.Chain.GetHeader(hash)
	if err != nil {
		return 0, common.NewRetryableError(fmt.Errorf("failed to get finalized header: %w", err))
	}

	return uint64(header.Number), nil
}

func (c *Client) FetchEvents(
	ctx context.Context, from, to uint64, filter core.EventFilter,
) ([]*core.Event, error) {
	var result []*core.Event

	for block := from; block <= to; block++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		blockHash, err := c.api.RPC.Chain.GetBlockHash(block)
		if err != nil {
			return nil, common.NewRetryableError(fmt.Errorf("failed to get block hash %d: %w", block, err))
		}

		events, err := c.retriever.GetEvents(blockHash)
		if err != nil {
			return nil, common.NewRetryableError(fmt.Errorf("failed to get events at %d: %w", block, err))
		}

		for i, ev := range events {
			decoded := c.decodeEvent(ev, filter, block, uint(i))
			if decoded != nil {
				result = append(result, decoded)
			}
		}
	}

	return result, nil
}

func (c *Client) decodeEvent(
	ev *parser.Event, filter core.EventFilter, block uint64, index uint,
) *core.Event {
	switch {
	case ev.Name == proposalSignedEventName && filter.Matches(core.EventKindProposalSigned):
		data, dataOk := fieldBytes(ev.Fields, "data")
		sig, sigOk := fieldBytes(ev.Fields, "signature")

		if !dataOk || !sigOk {
			c.logger.Warn("malformed ProposalSigned event", "block", block, "index", index)

			return nil
		}

		return &core.Event{
			ChainID:     c.chainID,
			Target:      filter.Target,
			Kind:        core.EventKindProposalSigned,
			BlockNumber: block,
			LogIndex:    index,
			ProposalSigned: &core.ProposalSignedEvent{
				Data:      data,
				Signature: sig,
			},
		}
	case strings.HasSuffix(ev.Name, transactionEventSuffix) && filter.Matches(core.EventKindNewCommitment):
		if !strings.HasPrefix(ev.Name, filter.Target+".") {
			return nil
		}

		leaf, ok := fieldLeaf(ev.Fields)
		if !ok {
			c.logger.Warn("transaction event without leaf", "name", ev.Name, "block", block)

			return nil
		}

		return &core.Event{
			ChainID:     c.chainID,
			Target:      filter.Target,
			Kind:        core.EventKindNewCommitment,
			BlockNumber: block,
			LogIndex:    index,
			NewCommitment: &core.NewCommitmentEvent{
				Commitment: leaf,
			},
		}
	default:
		return nil
	}
}

func (c *Client) GasPrice(_ context.Context) (*big.Int, error) {
	// substrate fees are weight based; the tx queue pays the runtime's
	// computed fee and never bids a price
	return big.NewInt(0), nil
}

// SubmitUnsignedProposal dispatches an unsigned proposal to the dkg
// proposal handler pallet.
func (c *Client) SubmitUnsignedProposal(_ context.Context, proposalBytes []byte) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", common.NewRetryableError(fmt.Errorf("failed to get metadata: %w", err))
	}

	call, err := types.NewCall(meta, submitUnsignedProposalCall, proposalBytes)
	if err != nil {
		return "", fmt.Errorf("failed to build %s: %w", submitUnsignedProposalCall, err)
	}

	ext := types.NewExtrinsic(call)

	hash, err := c.api.RPC.Author.SubmitExtrinsic(ext)
	if err != nil {
		return "", common.NewRetryableError(fmt.Errorf("failed to submit unsigned proposal: %w", err))
	}

	return hash.Hex(), nil
}

// SubmitCall signs and submits a call with the relayer account, waiting
// until the extrinsic is finalized.
func (c *Client) SubmitCall(ctx context.Context, callName string, args ...any) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.keyring == nil {
		return "", fmt.Errorf("no relayer key configured for chain %s", c.config.Name)
	}

	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", common.NewRetryableError(fmt.Errorf("failed to get metadata: %w", err))
	}

	call, err := types.NewCall(meta, callName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to build %s: %w", callName, err)
	}

	genesisHash, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return "", common.NewRetryableError(err)
	}

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return "", common.NewRetryableError(err)
	}

	accountKey, err := types.CreateStorageKey(meta, "System", "Account", c.keyring.PublicKey)
	if err != nil {
		return "", err
	}

	var accountInfo types.AccountInfo

	ok, err := c.api.RPC.State.GetStorageLatest(accountKey, &accountInfo)
	if err != nil || !ok {
		return "", common.NewRetryableError(fmt.Errorf("failed to get account info: %w", err))
	}

	ext := types.NewExtrinsic(call)

	err = ext.Sign(*c.keyring, types.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(accountInfo.Nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign extrinsic: %w", err)
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return "", common.NewRetryableError(fmt.Errorf("failed to submit extrinsic: %w", err))
	}

	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case status := <-sub.Chan():
			if status.IsFinalized {
				return status.AsFinalized.Hex(), nil
			}

			if status.IsDropped || status.IsInvalid {
				return "", fmt.Errorf("extrinsic %s was dropped or invalid", callName)
			}
		case err := <-sub.Err():
			return "", common.NewRetryableError(err)
		}
	}
}

func (c *Client) Close() {
	c.api.Client.Close()
}

func fieldBytes(fields registry.DecodedFields, name string) ([]byte, bool) {
	for _, field := range fields {
		if !strings.Contains(strings.ToLower(field.Name), name) {
			continue
		}

		if data, ok := decodedToBytes(field.Value); ok {
			return data, true
		}
	}

	return nil, false
}

// fieldLeaf finds the first 32 byte value in a field whose name contains
// "leaf" or "commitment", the commitment of a transaction event.
func fieldLeaf(fields registry.DecodedFields) ([32]byte, bool) {
	for _, field := range fields {
		lower := strings.ToLower(field.Name)
		if !strings.Contains(lower, "leaf") && !strings.Contains(lower, "commitment") {
			continue
		}

		if data, ok := decodedToBytes(field.Value); ok && len(data) == 32 {
			return [32]byte(data), true
		}
	}

	return [32]byte{}, false
}

func decodedToBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case types.Bytes:
		return v, true
	case []any:
		data := make([]byte, 0, len(v))

		for _, elem := range v {
			switch b := elem.(type) {
			case types.U8:
				data = append(data, byte(b))
			case uint8:
				data = append(data, b)
			default:
				return nil, false
			}
		}

		return data, true
	default:
		return nil, false
	}
}
