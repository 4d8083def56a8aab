package databaseaccess

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var (
	cursorsBucket    = []byte("Cursors")
	leavesBucket     = []byte("Leaves")
	leafMetaBucket   = []byte("LeafMeta")
	edgesBucket      = []byte("Edges")
	proposalsBucket  = []byte("Proposals")
	txQueueBucket    = []byte("TxQueue")
	txDedupBucket    = []byte("TxDedup")
	txByIDBucket     = []byte("TxByID")
	deadLetterBucket = []byte("DeadLetter")
)

type BBoltStore struct {
	db *bbolt.DB
}

var _ relayerstore.Store = (*BBoltStore)(nil)

func NewStore(filePath string) (*BBoltStore, error) {
	if err := common.CreateDirectoryIfNotExists(filepath.Dir(filePath), 0o770); err != nil {
		return nil, fmt.Errorf("failed to create directory for relayer database: %w", err)
	}

	db, err := bbolt.Open(filePath, 0o660, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}

	store := &BBoltStore{db: db}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{
			cursorsBucket, leavesBucket, leafMetaBucket, edgesBucket,
			proposalsBucket, txQueueBucket, txDedupBucket, txByIDBucket, deadLetterBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bn); err != nil {
				return fmt.Errorf("could not create bucket %s: %w", string(bn), err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

func (bs *BBoltStore) Close() error {
	return bs.db.Close()
}

func (bs *BBoltStore) GetLastBlock(watcherKey []byte, defaultBlock uint64) (uint64, error) {
	var result = defaultBlock

	err := bs.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(cursorsBucket).Get(watcherKey); len(data) == 8 {
			result = binary.BigEndian.Uint64(data)
		}

		return nil
	})

	return result, err
}

func (bs *BBoltStore) SetLastBlock(watcherKey []byte, block uint64) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return putUint64(tx.Bucket(cursorsBucket), watcherKey, block)
	})
}

func (bs *BBoltStore) AdvanceCursor(watcherKey []byte, block uint64, fn func(batch relayerstore.Batch) error) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		if fn != nil {
			if err := fn(&bboltBatch{tx: tx}); err != nil {
				return err
			}
		}

		return putUint64(tx.Bucket(cursorsBucket), watcherKey, block)
	})
}

func (bs *BBoltStore) AppendLeaf(
	tree relayerstore.TreeKey, leaf [relayerstore.LeafSize]byte, block uint64,
) (uint64, error) {
	var index uint64

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		meta, err := getLeafMeta(tx, tree)
		if err != nil {
			return err
		}

		index = meta.Count

		treeBucket, err := tx.Bucket(leavesBucket).CreateBucketIfNotExists(tree)
		if err != nil {
			return err
		}

		if err := treeBucket.Put(uint64Key(index), leaf[:]); err != nil {
			return err
		}

		meta.Count++
		if block > meta.LastBlock {
			meta.LastBlock = block
		}

		return putLeafMeta(tx, tree, meta)
	})

	return index, err
}

func (bs *BBoltStore) GetLeaves(tree relayerstore.TreeKey, from, to uint64) ([][relayerstore.LeafSize]byte, error) {
	var result [][relayerstore.LeafSize]byte

	err := bs.db.View(func(tx *bbolt.Tx) error {
		treeBucket := tx.Bucket(leavesBucket).Bucket(tree)
		if treeBucket == nil {
			return nil
		}

		cursor := treeBucket.Cursor()

		for k, v := cursor.Seek(uint64Key(from)); k != nil; k, v = cursor.Next() {
			if binary.BigEndian.Uint64(k) >= to {
				break
			}

			if len(v) != relayerstore.LeafSize {
				return fmt.Errorf("corrupted leaf at index %d", binary.BigEndian.Uint64(k))
			}

			result = append(result, [relayerstore.LeafSize]byte(v))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bs *BBoltStore) GetLeafMeta(tree relayerstore.TreeKey) (relayerstore.LeafMeta, error) {
	var meta relayerstore.LeafMeta

	err := bs.db.View(func(tx *bbolt.Tx) error {
		var err error

		meta, err = getLeafMeta(tx, tree)

		return err
	})

	return meta, err
}

func (bs *BBoltStore) AppendEncryptedOutput(
	tree relayerstore.TreeKey, output []byte, block uint64,
) (uint64, error) {
	encTree := relayerstore.EncryptedOutputTreeKey(tree)

	var index uint64

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		meta, err := getLeafMeta(tx, encTree)
		if err != nil {
			return err
		}

		index = meta.Count

		treeBucket, err := tx.Bucket(leavesBucket).CreateBucketIfNotExists(encTree)
		if err != nil {
			return err
		}

		if err := treeBucket.Put(uint64Key(index), output); err != nil {
			return err
		}

		meta.Count++
		if block > meta.LastBlock {
			meta.LastBlock = block
		}

		return putLeafMeta(tx, encTree, meta)
	})

	return index, err
}

func (bs *BBoltStore) GetEncryptedOutputs(tree relayerstore.TreeKey, from, to uint64) ([][]byte, error) {
	var result [][]byte

	err := bs.db.View(func(tx *bbolt.Tx) error {
		treeBucket := tx.Bucket(leavesBucket).Bucket(relayerstore.EncryptedOutputTreeKey(tree))
		if treeBucket == nil {
			return nil
		}

		cursor := treeBucket.Cursor()

		for k, v := cursor.Seek(uint64Key(from)); k != nil; k, v = cursor.Next() {
			if binary.BigEndian.Uint64(k) >= to {
				break
			}

			result = append(result, append([]byte{}, v...))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bs *BBoltStore) GetEdge(key []byte) (*relayerstore.EdgeState, error) {
	var result *relayerstore.EdgeState

	err := bs.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(edgesBucket).Get(key)
		if len(data) == 0 {
			return nil
		}

		var edge relayerstore.EdgeState

		if err := cbor.Unmarshal(data, &edge); err != nil {
			return err
		}

		result = &edge

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bs *BBoltStore) PutEdge(key []byte, edge relayerstore.EdgeState) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return putEdge(tx, key, edge)
	})
}

func (bs *BBoltStore) HasProposal(resource [32]byte, nonce uint32) (bool, error) {
	var exists bool

	err := bs.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(proposalsBucket).Get(proposalKey(resource, nonce)) != nil

		return nil
	})

	return exists, err
}

func (bs *BBoltStore) MarkProposal(resource [32]byte, nonce uint32) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return markProposal(tx, resource, nonce)
	})
}

func (bs *BBoltStore) EnqueueTx(item *relayerstore.TxQueueItem) (bool, error) {
	var inserted bool

	err := bs.db.Update(func(tx *bbolt.Tx) error {
		queueBucket := tx.Bucket(txQueueBucket)
		dedupBucket := tx.Bucket(txDedupBucket)

		if len(item.DedupKey) > 0 {
			if dedupBucket.Get(dedupKey(item.ChainID, item.DedupKey)) != nil {
				return nil
			}
		}

		seq, err := queueBucket.NextSequence()
		if err != nil {
			return err
		}

		item.Seq = seq

		data, err := cbor.Marshal(item)
		if err != nil {
			return err
		}

		if err := queueBucket.Put(queueKey(item.ChainID, seq), data); err != nil {
			return err
		}

		if len(item.DedupKey) > 0 {
			if err := dedupBucket.Put(dedupKey(item.ChainID, item.DedupKey), uint64Key(seq)); err != nil {
				return err
			}
		}

		if err := tx.Bucket(txByIDBucket).Put([]byte(item.ID), queueKey(item.ChainID, seq)); err != nil {
			return err
		}

		inserted = true

		return nil
	})

	return inserted, err
}

func (bs *BBoltStore) OldestActiveTx(chainID common.ChainID) (*relayerstore.TxQueueItem, error) {
	var result *relayerstore.TxQueueItem

	wire := chainID.Bytes()

	err := bs.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(txQueueBucket).Cursor()

		for k, v := cursor.Seek(wire[:]); k != nil && bytes.HasPrefix(k, wire[:]); k, v = cursor.Next() {
			var item relayerstore.TxQueueItem

			if err := cbor.Unmarshal(v, &item); err != nil {
				return err
			}

			if item.State == relayerstore.TxStatePending || item.State == relayerstore.TxStateSubmitted {
				result = &item

				return nil
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bs *BBoltStore) UpdateTx(item *relayerstore.TxQueueItem) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		data, err := cbor.Marshal(item)
		if err != nil {
			return err
		}

		return tx.Bucket(txQueueBucket).Put(queueKey(item.ChainID, item.Seq), data)
	})
}

func (bs *BBoltStore) RemoveTx(chainID common.ChainID, seq uint64, itemDedupKey []byte) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		key := queueKey(chainID, seq)

		data := tx.Bucket(txQueueBucket).Get(key)
		if data != nil {
			var item relayerstore.TxQueueItem

			if err := cbor.Unmarshal(data, &item); err == nil {
				_ = tx.Bucket(txByIDBucket).Delete([]byte(item.ID))
			}
		}

		if err := tx.Bucket(txQueueBucket).Delete(key); err != nil {
			return err
		}

		if len(itemDedupKey) > 0 {
			return tx.Bucket(txDedupBucket).Delete(dedupKey(chainID, itemDedupKey))
		}

		return nil
	})
}

func (bs *BBoltStore) GetTxByID(id string) (*relayerstore.TxQueueItem, error) {
	var result *relayerstore.TxQueueItem

	err := bs.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(txByIDBucket).Get([]byte(id))
		if key == nil {
			return nil
		}

		data := tx.Bucket(txQueueBucket).Get(key)
		if data == nil {
			return nil
		}

		var item relayerstore.TxQueueItem

		if err := cbor.Unmarshal(data, &item); err != nil {
			return err
		}

		result = &item

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bs *BBoltStore) QueueDepth(chainID common.ChainID) (int, error) {
	var depth int

	wire := chainID.Bytes()

	err := bs.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(txQueueBucket).Cursor()

		for k, _ := cursor.Seek(wire[:]); k != nil && bytes.HasPrefix(k, wire[:]); k, _ = cursor.Next() {
			depth++
		}

		return nil
	})

	return depth, err
}

func (bs *BBoltStore) RecordDeadLetter(record relayerstore.DeadLetterRecord) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		return recordDeadLetter(tx, record)
	})
}

func (bs *BBoltStore) IsDeadLettered(
	chainID common.ChainID, block uint64, logIndex uint, handlerName string,
) (bool, error) {
	var exists bool

	err := bs.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(deadLetterBucket).Get(deadLetterKey(chainID, block, logIndex, handlerName)) != nil

		return nil
	})

	return exists, err
}

// bboltBatch exposes the mutating subset inside an AdvanceCursor transaction.
type bboltBatch struct {
	tx *bbolt.Tx
}

var _ relayerstore.Batch = (*bboltBatch)(nil)

func (b *bboltBatch) InsertLeaf(tree relayerstore.TreeKey, index uint64, leaf [relayerstore.LeafSize]byte) error {
	treeBucket, err := b.tx.Bucket(leavesBucket).CreateBucketIfNotExists(tree)
	if err != nil {
		return err
	}

	return treeBucket.Put(uint64Key(index), leaf[:])
}

func (b *bboltBatch) InsertEncryptedOutput(tree relayerstore.TreeKey, index uint64, output []byte) error {
	treeBucket, err := b.tx.Bucket(leavesBucket).CreateBucketIfNotExists(
		relayerstore.EncryptedOutputTreeKey(tree))
	if err != nil {
		return err
	}

	return treeBucket.Put(uint64Key(index), output)
}

func (b *bboltBatch) SetLeafMeta(tree relayerstore.TreeKey, meta relayerstore.LeafMeta) error {
	return putLeafMeta(b.tx, tree, meta)
}

func (b *bboltBatch) PutEdge(key []byte, edge relayerstore.EdgeState) error {
	return putEdge(b.tx, key, edge)
}

func (b *bboltBatch) MarkProposal(resource [32]byte, nonce uint32) error {
	return markProposal(b.tx, resource, nonce)
}

func (b *bboltBatch) RecordDeadLetter(record relayerstore.DeadLetterRecord) error {
	return recordDeadLetter(b.tx, record)
}

func getLeafMeta(tx *bbolt.Tx, tree relayerstore.TreeKey) (relayerstore.LeafMeta, error) {
	var meta relayerstore.LeafMeta

	data := tx.Bucket(leafMetaBucket).Get(tree)
	if len(data) == 0 {
		return meta, nil
	}

	if err := cbor.Unmarshal(data, &meta); err != nil {
		return meta, err
	}

	return meta, nil
}

func putLeafMeta(tx *bbolt.Tx, tree relayerstore.TreeKey, meta relayerstore.LeafMeta) error {
	data, err := cbor.Marshal(meta)
	if err != nil {
		return err
	}

	return tx.Bucket(leafMetaBucket).Put(tree, data)
}

func putEdge(tx *bbolt.Tx, key []byte, edge relayerstore.EdgeState) error {
	data, err := cbor.Marshal(edge)
	if err != nil {
		return err
	}

	return tx.Bucket(edgesBucket).Put(key, data)
}

func markProposal(tx *bbolt.Tx, resource [32]byte, nonce uint32) error {
	return tx.Bucket(proposalsBucket).Put(proposalKey(resource, nonce), []byte{1})
}

func recordDeadLetter(tx *bbolt.Tx, record relayerstore.DeadLetterRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	data, err := cbor.Marshal(record)
	if err != nil {
		return err
	}

	return tx.Bucket(deadLetterBucket).Put(
		deadLetterKey(record.ChainID, record.BlockNumber, record.LogIndex, record.HandlerName), data)
}

func uint64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)

	return key
}

func putUint64(bucket *bbolt.Bucket, key []byte, v uint64) error {
	return bucket.Put(key, uint64Key(v))
}

func queueKey(chainID common.ChainID, seq uint64) []byte {
	wire := chainID.Bytes()

	return append(wire[:], uint64Key(seq)...)
}

func dedupKey(chainID common.ChainID, itemKey []byte) []byte {
	wire := chainID.Bytes()

	return append(wire[:], itemKey...)
}

func proposalKey(resource [32]byte, nonce uint32) []byte {
	key := make([]byte, 0, 36)
	key = append(key, resource[:]...)
	key = append(key,
		byte(nonce>>24), byte(nonce>>16), byte(nonce>>8), byte(nonce))

	return key
}

func deadLetterKey(chainID common.ChainID, block uint64, logIndex uint, handlerName string) []byte {
	wire := chainID.Bytes()

	key := make([]byte, 0, 6+8+8+len(handlerName))
	key = append(key, wire[:]...)
	key = append(key, uint64Key(block)...)
	key = append(key, uint64Key(uint64(logIndex))...)
	key = append(key, []byte(handlerName)...)

	return key
}
