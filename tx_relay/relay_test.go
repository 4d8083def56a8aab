package txrelay

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	ratefetcher "github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service"
	exchangecore "github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const (
	testChainID  = uint64(5001)
	testContract = "0x91eB86019FD8D7c5d9605b6FD723341159c9CEA3"
)

var testRelayer = ethcommon.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")

type captureEnqueuer struct {
	items []*relayerstore.TxQueueItem
}

func (c *captureEnqueuer) Enqueue(item *relayerstore.TxQueueItem) (string, bool, error) {
	c.items = append(c.items, item)

	return "queued-id", true, nil
}

func newTestRelay(t *testing.T) (*RelayService, *FeeOracle, *captureEnqueuer) {
	t.Helper()

	logger := hclog.NewNullLogger()

	appConfig := &relayerconfig.AppConfig{
		Features: relayerconfig.FeaturesConfig{PrivateTxRelay: true},
		EVM: map[string]*relayerconfig.EVMChainConfig{
			"hermes": {
				Name:        "hermes",
				ChainID:     testChainID,
				NativeAsset: "TNT",
				Enabled:     true,
				RelayerFeeConfig: relayerconfig.RelayerFeeConfig{
					RelayerProfitPercent: 10,
					MaxRefundAmountUSD:   1,
				},
			},
		},
	}

	rates, err := ratefetcher.NewRateFetcher(
		exchangecore.Static, map[string]float64{"TNT": 2}, logger)
	require.NoError(t, err)

	oracle := NewFeeOracle(appConfig.EVM["hermes"], &fakeReader{
		gasPrice: big.NewInt(1_000_000_000),
		balance:  new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
	}, rates, logger)

	enqueuer := &captureEnqueuer{}

	service := NewRelayService(appConfig,
		map[uint64]*FeeOracle{testChainID: oracle},
		map[common.ChainID]Enqueuer{common.NewEVMChainID(testChainID): enqueuer},
		map[uint64]ethcommon.Address{testChainID: testRelayer},
		logger)

	return service, oracle, enqueuer
}

func validRequest(t *testing.T, quote *FeeInfo) *WithdrawRequest {
	t.Helper()

	extDataBytes := []byte{0x01, 0x02, 0x03, 0x04}
	extDataHash := crypto.Keccak256(extDataBytes)

	return &WithdrawRequest{
		Proof:        "0x" + hex.EncodeToString([]byte{0xaa, 0xbb}),
		PublicInputs: "0x" + hex.EncodeToString([]byte{0xcc}),
		ExtDataBytes: "0x" + hex.EncodeToString(extDataBytes),
		ExtDataHash:  "0x" + hex.EncodeToString(extDataHash),
		ExtData: WithdrawExtData{
			Recipient: "0x1111111111111111111111111111111111111111",
			Relayer:   testRelayer.Hex(),
			Fee:       quote.EstimatedFee.String(),
			Refund:    "0",
		},
	}
}

func TestSubmitWithdrawEVM(t *testing.T) {
	t.Run("TestAcceptsValidSubmission", func(t *testing.T) {
		service, oracle, enqueuer := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		id, err := service.SubmitWithdrawEVM(
			context.Background(), testChainID, testContract, validRequest(t, quote))
		require.NoError(t, err)
		require.Equal(t, "queued-id", id)

		require.Len(t, enqueuer.items, 1)
		require.Equal(t, relayerstore.TxKindPrivateWithdraw, enqueuer.items[0].Kind)
		require.Equal(t, testContract, enqueuer.items[0].To)
		require.NotEmpty(t, enqueuer.items[0].Calldata)
	})

	t.Run("TestRejectsWithoutQuote", func(t *testing.T) {
		service, _, _ := newTestRelay(t)

		request := validRequest(t, &FeeInfo{EstimatedFee: big.NewInt(1)})

		_, err := service.SubmitWithdrawEVM(context.Background(), testChainID, testContract, request)
		require.Error(t, err)
		require.ErrorContains(t, err, "no live fee quote")
	})

	t.Run("TestRejectsLowFee", func(t *testing.T) {
		service, oracle, _ := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		request := validRequest(t, quote)
		request.ExtData.Fee = new(big.Int).Sub(quote.EstimatedFee, big.NewInt(1)).String()

		_, err = service.SubmitWithdrawEVM(context.Background(), testChainID, testContract, request)
		require.Error(t, err)
		require.ErrorContains(t, err, "below quoted")
	})

	t.Run("TestRejectsExcessiveRefund", func(t *testing.T) {
		service, oracle, _ := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		request := validRequest(t, quote)
		request.ExtData.Refund = new(big.Int).Add(quote.MaxRefund, big.NewInt(1)).String()

		_, err = service.SubmitWithdrawEVM(context.Background(), testChainID, testContract, request)
		require.Error(t, err)
		require.ErrorContains(t, err, "above quoted maximum")
	})

	t.Run("TestRejectsForeignRelayer", func(t *testing.T) {
		service, oracle, _ := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		request := validRequest(t, quote)
		request.ExtData.Relayer = "0x2222222222222222222222222222222222222222"

		_, err = service.SubmitWithdrawEVM(context.Background(), testChainID, testContract, request)
		require.Error(t, err)
		require.ErrorContains(t, err, "not this relayer")
	})

	t.Run("TestRejectsHashMismatch", func(t *testing.T) {
		service, oracle, _ := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		request := validRequest(t, quote)
		request.ExtDataHash = "0x" + hex.EncodeToString(make([]byte, 32))

		_, err = service.SubmitWithdrawEVM(context.Background(), testChainID, testContract, request)
		require.Error(t, err)
		require.ErrorContains(t, err, "hash does not match")
	})

	t.Run("TestRejectsUnknownChain", func(t *testing.T) {
		service, oracle, _ := newTestRelay(t)

		quote, err := oracle.GetFeeInfo(context.Background(), testContract, 100_000)
		require.NoError(t, err)

		_, err = service.SubmitWithdrawEVM(context.Background(), 9999, testContract, validRequest(t, quote))
		require.Error(t, err)
		require.ErrorContains(t, err, "unsupported chain")
	})
}
