package relayerevents

import (
	"github.com/ethereum/go-ethereum/event"
)

type Kind string

const (
	KindLeavesStore     Kind = "leaves_store"
	KindTxQueue         Kind = "tx_queue"
	KindSignatureBridge Kind = "signature_bridge"
	KindSigningBackend  Kind = "signing_backend"
	KindPrivateTx       Kind = "private_tx"
	KindError           Kind = "error"
)

// Event is one bus message, serialized to clients as {kind, event}.
type Event struct {
	Kind  Kind           `json:"kind"`
	Event map[string]any `json:"event"`
}

// Bus fans events out to every subscriber. Send blocks until every
// subscriber has room, so readers keep a buffered channel and drain it
// promptly; the websocket layer buffers per connection.
type Bus struct {
	feed event.Feed
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(ev Event) {
	b.feed.Send(ev)
}

func (b *Bus) Subscribe(ch chan<- Event) event.Subscription {
	return b.feed.Subscribe(ch)
}

func NewLeavesStoreEvent(chainType, chainID string, leafIndex uint64) Event {
	return Event{
		Kind: KindLeavesStore,
		Event: map[string]any{
			"ty":         chainType,
			"chain_id":   chainID,
			"leaf_index": leafIndex,
		},
	}
}

func NewTxQueueEvent(chainType, chainID, id, status string, finalized bool) Event {
	return Event{
		Kind: KindTxQueue,
		Event: map[string]any{
			"ty":        chainType,
			"chain_id":  chainID,
			"id":        id,
			"status":    status,
			"finalized": finalized,
		},
	}
}

func NewSigningBackendEvent(backend, proposalHash string) Event {
	return Event{
		Kind: KindSigningBackend,
		Event: map[string]any{
			"backend":       backend,
			"proposal_hash": proposalHash,
		},
	}
}

func NewSignatureBridgeEvent(chainType, chainID, call string) Event {
	return Event{
		Kind: KindSignatureBridge,
		Event: map[string]any{
			"ty":       chainType,
			"chain_id": chainID,
			"call":     call,
		},
	}
}

func NewPrivateTxEvent(chainType, chainID, id string, finalized bool) Event {
	return Event{
		Kind: KindPrivateTx,
		Event: map[string]any{
			"ty":        chainType,
			"chain_id":  chainID,
			"id":        id,
			"finalized": finalized,
		},
	}
}

func NewErrorEvent(message string) Event {
	return Event{
		Kind: KindError,
		Event: map[string]any{
			"message": message,
		},
	}
}
