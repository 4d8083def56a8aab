package txqueue

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	databaseaccess "github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore/database_access"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue/core"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mutex        sync.Mutex
	submitted    []string
	submitErrs   []error
	gasPrice     *big.Int
	finalizeErrs []error
}

var _ core.Submitter = (*fakeSubmitter)(nil)

func (s *fakeSubmitter) EstimateGas(_ context.Context, _ *relayerstore.TxQueueItem) (uint64, error) {
	return 21_000, nil
}

func (s *fakeSubmitter) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if s.gasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}

	return s.gasPrice, nil
}

func (s *fakeSubmitter) Submit(
	_ context.Context, item *relayerstore.TxQueueItem, _ *big.Int,
) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]

		if err != nil {
			return "", err
		}
	}

	s.submitted = append(s.submitted, item.ID)

	return "0xhash" + item.ID, nil
}

func (s *fakeSubmitter) WaitFinalized(_ context.Context, _ string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.finalizeErrs) > 0 {
		err := s.finalizeErrs[0]
		s.finalizeErrs = s.finalizeErrs[1:]

		return err
	}

	return nil
}

func (s *fakeSubmitter) submittedIDs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]string{}, s.submitted...)
}

func newTestQueue(t *testing.T, submitter core.Submitter) (*TxQueueImpl, *databaseaccess.BBoltStore, *relayerevents.Bus) {
	t.Helper()

	store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	bus := relayerevents.NewBus()

	queue := NewTxQueue(core.QueueConfig{
		ChainID:           common.NewEVMChainID(5002),
		PollingInterval:   5 * time.Millisecond,
		MaxSleepInterval:  20 * time.Millisecond,
		Confirmations:     1,
		ExpectedBlockTime: time.Second,
	}, store, submitter, bus, hclog.NewNullLogger())

	return queue, store, bus
}

func runQueueUntil(t *testing.T, queue *TxQueueImpl, condition func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = queue.Start(ctx)
	}()

	require.Eventually(t, condition, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func pendingItem() *relayerstore.TxQueueItem {
	return &relayerstore.TxQueueItem{
		Kind:     relayerstore.TxKindExecuteProposal,
		To:       "0x2222222222222222222222222222222222222222",
		Calldata: []byte{0x01},
		GasLimit: 100_000,
	}
}

func TestTxQueue(t *testing.T) {
	t.Run("TestSubmitAndFinalize", func(t *testing.T) {
		submitter := &fakeSubmitter{}
		queue, store, bus := newTestQueue(t, submitter)

		eventCh := make(chan relayerevents.Event, 16)
		sub := bus.Subscribe(eventCh)

		defer sub.Unsubscribe()

		id, inserted, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)
		require.True(t, inserted)

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		require.Equal(t, []string{id}, submitter.submittedIDs())

		var sawFinalized bool

		for len(eventCh) > 0 {
			ev := <-eventCh
			if ev.Kind == relayerevents.KindTxQueue && ev.Event["finalized"] == true {
				sawFinalized = true
				require.Equal(t, "5002", ev.Event["chain_id"])
				require.Equal(t, "evm", ev.Event["ty"])
			}
		}

		require.True(t, sawFinalized)
	})

	t.Run("TestFIFOOrder", func(t *testing.T) {
		submitter := &fakeSubmitter{}
		queue, store, _ := newTestQueue(t, submitter)

		firstID, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		secondID, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		require.Equal(t, []string{firstID, secondID}, submitter.submittedIDs())
	})

	t.Run("TestRetryableErrorIsRetried", func(t *testing.T) {
		submitter := &fakeSubmitter{
			submitErrs: []error{
				common.NewRetryableError(errors.New("nonce too low")),
			},
		}
		queue, store, _ := newTestQueue(t, submitter)

		_, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		require.Len(t, submitter.submittedIDs(), 1)
	})

	t.Run("TestPermanentErrorMarksFailed", func(t *testing.T) {
		submitter := &fakeSubmitter{
			submitErrs: []error{errors.New("execution reverted: bad proposal")},
		}
		queue, store, _ := newTestQueue(t, submitter)

		id, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		runQueueUntil(t, queue, func() bool {
			item, err := store.GetTxByID(id)

			return err == nil && item != nil && item.State == relayerstore.TxStateFailed
		})

		item, err := store.GetTxByID(id)
		require.NoError(t, err)
		require.Contains(t, item.FailureReason, "reverted")
		require.Empty(t, submitter.submittedIDs())
	})

	t.Run("TestRevertDuringFinalizationMarksFailed", func(t *testing.T) {
		submitter := &fakeSubmitter{
			finalizeErrs: []error{errors.New("transaction 0xhash reverted")},
		}
		queue, store, _ := newTestQueue(t, submitter)

		firstID, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		secondID, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		// the revert is terminal for the first item and must not wedge
		// the one behind it
		runQueueUntil(t, queue, func() bool {
			first, err := store.GetTxByID(firstID)
			if err != nil || first == nil || first.State != relayerstore.TxStateFailed {
				return false
			}

			second, err := store.GetTxByID(secondID)

			return err == nil && second == nil // finalized and removed
		})

		first, err := store.GetTxByID(firstID)
		require.NoError(t, err)
		require.Contains(t, first.FailureReason, "reverted")
		require.Equal(t, []string{firstID, secondID}, submitter.submittedIDs())
	})

	t.Run("TestFinalizationTimeoutResubmits", func(t *testing.T) {
		submitter := &fakeSubmitter{
			finalizeErrs: []error{
				common.NewRetryableError(errors.New("receipt lookup failed")),
			},
		}
		queue, store, _ := newTestQueue(t, submitter)

		id, _, err := queue.Enqueue(pendingItem())
		require.NoError(t, err)

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		// resubmitted once with a bumped price, then finalized
		require.Equal(t, []string{id, id}, submitter.submittedIDs())
	})

	t.Run("TestGovernanceDedup", func(t *testing.T) {
		submitter := &fakeSubmitter{}
		queue, store, _ := newTestQueue(t, submitter)

		resource := proposals.NewResourceID(
			ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"),
			common.NewEVMChainID(5002),
		)

		makeItem := func() *relayerstore.TxQueueItem {
			item := pendingItem()
			item.DedupKey = GovernanceDedupKey(resource, 7)

			return item
		}

		_, inserted, err := queue.Enqueue(makeItem())
		require.NoError(t, err)
		require.True(t, inserted)

		_, inserted, err = queue.Enqueue(makeItem())
		require.NoError(t, err)
		require.False(t, inserted)

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		// exactly one submission despite two enqueues
		require.Len(t, submitter.submittedIDs(), 1)
	})

	t.Run("TestResumesSubmittedAfterRestart", func(t *testing.T) {
		submitter := &fakeSubmitter{}
		queue, store, _ := newTestQueue(t, submitter)

		item := pendingItem()
		id, _, err := queue.Enqueue(item)
		require.NoError(t, err)

		// simulate a crash right after submission was recorded
		loaded, err := store.GetTxByID(id)
		require.NoError(t, err)

		loaded.State = relayerstore.TxStateSubmitted
		loaded.TxHash = "0xdeadbeef"
		require.NoError(t, store.UpdateTx(loaded))

		runQueueUntil(t, queue, func() bool {
			depth, err := store.QueueDepth(queue.config.ChainID)

			return err == nil && depth == 0
		})

		// finalization resumed from the stored hash without resubmitting
		require.Empty(t, submitter.submittedIDs())
	})
}

func TestBuildExecuteProposalItem(t *testing.T) {
	srcResource := proposals.NewResourceID(
		ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.NewEVMChainID(5001),
	)
	dstResource := proposals.NewResourceID(
		ethcommon.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.NewEVMChainID(5002),
	)

	proposal := proposals.NewAnchorUpdateProposal(proposals.ProposalHeader{
		ResourceID:        dstResource,
		FunctionSignature: proposals.FunctionSignature{0x01, 0x02, 0x03, 0x04},
		Nonce:             3,
	}, [32]byte{0xaa}, srcResource)

	signed := &proposals.SignedProposal{Proposal: proposal, Signature: make([]byte, 65)}

	item, err := BuildExecuteProposalItem(signed)
	require.NoError(t, err)
	require.Equal(t, common.NewEVMChainID(5002), item.ChainID)
	require.Equal(t, relayerstore.TxKindExecuteProposal, item.Kind)
	require.Equal(t, dstResource.TargetAddress().Hex(), item.To)
	require.Equal(t, GovernanceDedupKey(dstResource, 3), item.DedupKey)
	require.NotEmpty(t, item.Calldata)
}
