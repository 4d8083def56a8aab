package evm

import (
	"context"
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// PendingNonceReader is the node-side half of nonce resolution.
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
}

// NonceStrategy resolves the next nonce for an account. The combined
// strategy takes max(node pending nonce, locally tracked + 1) so that a
// node lagging behind our own submissions never hands out a stale nonce.
type NonceStrategy interface {
	GetNextNonce(ctx context.Context, reader PendingNonceReader, addr ethcommon.Address) (uint64, error)
	UpdateNonce(addr ethcommon.Address, value uint64, success bool)
}

type combinedNonceStrategy struct {
	lastNonceMap map[ethcommon.Address]uint64
	mutex        sync.Mutex
}

func NewCombinedNonceStrategy() NonceStrategy {
	return &combinedNonceStrategy{
		lastNonceMap: map[ethcommon.Address]uint64{},
	}
}

func (s *combinedNonceStrategy) GetNextNonce(
	ctx context.Context, reader PendingNonceReader, addr ethcommon.Address,
) (uint64, error) {
	nextNonce, err := reader.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("error while PendingNonceAt: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if prevValue, exists := s.lastNonceMap[addr]; exists && prevValue >= nextNonce {
		nextNonce = prevValue + 1
	}

	return nextNonce, nil
}

func (s *combinedNonceStrategy) UpdateNonce(addr ethcommon.Address, value uint64, success bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if success {
		s.lastNonceMap[addr] = value
	} else {
		delete(s.lastNonceMap, addr)
	}
}
