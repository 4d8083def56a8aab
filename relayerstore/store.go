package relayerstore

import (
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
)

const LeafSize = 32

// TreeKey namespaces an append-only leaf sequence. EVM trees are keyed by
// chain and contract address, substrate trees by chain, tree id and pallet.
type TreeKey []byte

func EVMTreeKey(chainID common.ChainID, address string) TreeKey {
	wire := chainID.Bytes()

	key := make([]byte, 0, len(wire)+len(address))
	key = append(key, wire[:]...)
	key = append(key, []byte(address)...)

	return key
}

func SubstrateTreeKey(chainID common.ChainID, treeID uint32, palletIndex uint8) TreeKey {
	wire := chainID.Bytes()

	return append(wire[:],
		byte(treeID>>24), byte(treeID>>16), byte(treeID>>8), byte(treeID),
		palletIndex,
	)
}

// EncryptedOutputTreeKey derives the sibling sequence holding encrypted
// outputs for the same anchor.
func EncryptedOutputTreeKey(tree TreeKey) TreeKey {
	return append([]byte("enc/"), tree...)
}

// WatcherKey namespaces a watcher cursor by chain, target and event kind.
func WatcherKey(chainID common.ChainID, target, eventKind string) []byte {
	wire := chainID.Bytes()

	key := make([]byte, 0, len(wire)+len(target)+len(eventKind)+1)
	key = append(key, wire[:]...)
	key = append(key, []byte(target)...)
	key = append(key, '/')
	key = append(key, []byte(eventKind)...)

	return key
}

// LeafMeta tracks the length of a leaf sequence and the block of the last
// observed deposit.
type LeafMeta struct {
	Count     uint64 `cbor:"1,keyasint"`
	LastBlock uint64 `cbor:"2,keyasint"`
}

// EdgeState is the latest proposed (root, leaf index, nonce) for a
// (local anchor, source chain) pair; used to suppress duplicate proposals.
type EdgeState struct {
	Root      [32]byte `cbor:"1,keyasint"`
	LeafIndex uint64   `cbor:"2,keyasint"`
	Nonce     uint32   `cbor:"3,keyasint"`
}

// EdgeKey namespaces edge state by destination anchor resource and source chain.
func EdgeKey(anchorResource [32]byte, srcChain common.ChainID) []byte {
	wire := srcChain.Bytes()

	key := make([]byte, 0, len(anchorResource)+len(wire))
	key = append(key, anchorResource[:]...)
	key = append(key, wire[:]...)

	return key
}

type TxSubmissionState uint8

const (
	TxStatePending TxSubmissionState = iota
	TxStateSubmitted
	TxStateFinalized
	TxStateFailed
)

func (s TxSubmissionState) String() string {
	switch s {
	case TxStatePending:
		return "Pending"
	case TxStateSubmitted:
		return "Submitted"
	case TxStateFinalized:
		return "Finalized"
	case TxStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type TxKind uint8

const (
	TxKindExecuteProposal TxKind = iota
	TxKindPrivateWithdraw
)

func (k TxKind) String() string {
	switch k {
	case TxKindExecuteProposal:
		return "execute_proposal_with_signature"
	case TxKindPrivateWithdraw:
		return "transact"
	default:
		return "unknown"
	}
}

// TxQueueItem is one durable entry of a per-chain transaction queue.
// Seq orders the queue; ID is stable across retries and surfaced to clients.
type TxQueueItem struct {
	ID            string            `cbor:"1,keyasint"`
	Seq           uint64            `cbor:"2,keyasint"`
	ChainID       common.ChainID    `cbor:"3,keyasint"`
	Kind          TxKind            `cbor:"4,keyasint"`
	To            string            `cbor:"5,keyasint"`
	Calldata      []byte            `cbor:"6,keyasint"`
	GasLimit      uint64            `cbor:"7,keyasint"`
	DedupKey      []byte            `cbor:"8,keyasint,omitempty"`
	State         TxSubmissionState `cbor:"9,keyasint"`
	TxHash        string            `cbor:"10,keyasint,omitempty"`
	SubmittedAt   time.Time         `cbor:"11,keyasint,omitempty"`
	LastGasPrice  []byte            `cbor:"12,keyasint,omitempty"`
	Attempts      uint32            `cbor:"13,keyasint"`
	NextAttemptAt time.Time         `cbor:"14,keyasint,omitempty"`
	FailureReason string            `cbor:"15,keyasint,omitempty"`
}

// DeadLetterRecord holds a permanently failed event so that replays skip it.
type DeadLetterRecord struct {
	ChainID     common.ChainID `cbor:"1,keyasint"`
	BlockNumber uint64         `cbor:"2,keyasint"`
	LogIndex    uint           `cbor:"3,keyasint"`
	HandlerName string         `cbor:"4,keyasint"`
	Reason      string         `cbor:"5,keyasint"`
	RecordedAt  time.Time      `cbor:"6,keyasint"`
}

// Batch is the mutating subset available inside an atomic cursor advance.
// The cursor is written in the same transaction, so it never leads the
// side effects recorded through the batch.
type Batch interface {
	InsertLeaf(tree TreeKey, index uint64, leaf [LeafSize]byte) error
	InsertEncryptedOutput(tree TreeKey, index uint64, output []byte) error
	SetLeafMeta(tree TreeKey, meta LeafMeta) error
	PutEdge(key []byte, edge EdgeState) error
	MarkProposal(resource [32]byte, nonce uint32) error
	RecordDeadLetter(record DeadLetterRecord) error
}

type HistoryStore interface {
	GetLastBlock(watcherKey []byte, defaultBlock uint64) (uint64, error)
	SetLastBlock(watcherKey []byte, block uint64) error
	// AdvanceCursor applies fn and the new cursor height atomically.
	AdvanceCursor(watcherKey []byte, block uint64, fn func(batch Batch) error) error
}

type LeafStore interface {
	// AppendLeaf writes the leaf at the current count and returns its index.
	AppendLeaf(tree TreeKey, leaf [LeafSize]byte, block uint64) (uint64, error)
	GetLeaves(tree TreeKey, from, to uint64) ([][LeafSize]byte, error)
	GetLeafMeta(tree TreeKey) (LeafMeta, error)
	// Encrypted outputs form a sibling append-only sequence with
	// variable-length entries.
	AppendEncryptedOutput(tree TreeKey, output []byte, block uint64) (uint64, error)
	GetEncryptedOutputs(tree TreeKey, from, to uint64) ([][]byte, error)
}

type EdgeStore interface {
	GetEdge(key []byte) (*EdgeState, error)
	PutEdge(key []byte, edge EdgeState) error
}

type ProposalStore interface {
	HasProposal(resource [32]byte, nonce uint32) (bool, error)
	MarkProposal(resource [32]byte, nonce uint32) error
}

type QueueStore interface {
	// EnqueueTx inserts the item unless its dedup key is already present.
	// The assigned sequence is written back into the item.
	EnqueueTx(item *TxQueueItem) (bool, error)
	// OldestActiveTx returns the lowest-sequence item that is not terminal.
	OldestActiveTx(chainID common.ChainID) (*TxQueueItem, error)
	UpdateTx(item *TxQueueItem) error
	RemoveTx(chainID common.ChainID, seq uint64, dedupKey []byte) error
	GetTxByID(id string) (*TxQueueItem, error)
	QueueDepth(chainID common.ChainID) (int, error)
}

type DeadLetterStore interface {
	RecordDeadLetter(record DeadLetterRecord) error
	IsDeadLettered(chainID common.ChainID, block uint64, logIndex uint, handlerName string) (bool, error)
}

type Store interface {
	HistoryStore
	LeafStore
	EdgeStore
	ProposalStore
	QueueStore
	DeadLetterStore

	Close() error
}
