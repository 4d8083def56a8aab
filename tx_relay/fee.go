package txrelay

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ratefetcher "github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/hashicorp/go-hclog"
)

const (
	DefaultQuoteTTL = time.Minute

	// portion of the relayer balance that bounds a single refund
	refundBalanceDivisor = 10

	weiPerEther = 1e18
)

// FeeInfo is one cached fee quote for a (chain, contract) pair.
type FeeInfo struct {
	EstimatedFee       *big.Int  `json:"estimatedFee"`
	GasPrice           *big.Int  `json:"gasPrice"`
	MaxRefund          *big.Int  `json:"maxRefund"`
	RefundExchangeRate float64   `json:"refundExchangeRate"`
	Timestamp          time.Time `json:"timestamp"`
	TTLSeconds         uint64    `json:"ttl"`
}

func (f *FeeInfo) Expired() bool {
	return time.Since(f.Timestamp) > time.Duration(f.TTLSeconds)*time.Second
}

// ChainReader is what the oracle needs from a chain: the current gas
// price and the relayer account balance.
type ChainReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context) (*big.Int, error)
}

// FeeOracle quotes relaying fees for one chain. Quotes embed the
// relayer's profit margin and are cached for their ttl so that a client
// paying a quoted fee is accepted for as long as the quote lives.
type FeeOracle struct {
	chainConfig *relayerconfig.EVMChainConfig
	reader      ChainReader
	rates       *ratefetcher.RateFetcher
	logger      hclog.Logger

	quotes map[string]*FeeInfo
	mutex  sync.Mutex
}

func NewFeeOracle(
	chainConfig *relayerconfig.EVMChainConfig, reader ChainReader,
	rates *ratefetcher.RateFetcher, logger hclog.Logger,
) *FeeOracle {
	return &FeeOracle{
		chainConfig: chainConfig,
		reader:      reader,
		rates:       rates,
		logger:      logger.Named("fee_oracle").With("chain", chainConfig.Name),
		quotes:      map[string]*FeeInfo{},
	}
}

// GetFeeInfo returns the current quote for a contract, regenerating it
// when the cached one expired.
func (o *FeeOracle) GetFeeInfo(ctx context.Context, contract string, gasAmount uint64) (*FeeInfo, error) {
	o.mutex.Lock()

	if quote, exists := o.quotes[contract]; exists && !quote.Expired() {
		o.mutex.Unlock()

		return quote, nil
	}

	o.mutex.Unlock()

	gasPrice, err := o.reader.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	estimatedFee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasAmount))

	profit := new(big.Int).Mul(estimatedFee,
		big.NewInt(int64(o.chainConfig.RelayerFeeConfig.RelayerProfitPercent*100)))
	profit.Div(profit, big.NewInt(10_000))
	estimatedFee.Add(estimatedFee, profit)

	maxRefund, err := o.maxRefund(ctx)
	if err != nil {
		return nil, err
	}

	quote := &FeeInfo{
		EstimatedFee:       estimatedFee,
		GasPrice:           gasPrice,
		MaxRefund:          maxRefund,
		RefundExchangeRate: 1,
		Timestamp:          time.Now().UTC(),
		TTLSeconds:         uint64(DefaultQuoteTTL / time.Second),
	}

	o.mutex.Lock()
	o.quotes[contract] = quote
	o.mutex.Unlock()

	o.logger.Debug("fee quote generated",
		"contract", contract, "estimated_fee", estimatedFee, "max_refund", maxRefund)

	return quote, nil
}

// LastQuote returns the live quote used to validate a withdraw
// submission, or nil when none exists or it expired.
func (o *FeeOracle) LastQuote(contract string) *FeeInfo {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	quote, exists := o.quotes[contract]
	if !exists || quote.Expired() {
		return nil
	}

	return quote
}

// RefundExchangeRate is price(target native) / price(source native).
func (o *FeeOracle) RefundExchangeRate(ctx context.Context, srcAsset, dstAsset string) (float64, error) {
	srcPrice, err := o.rates.USDPrice(ctx, srcAsset)
	if err != nil {
		return 0, err
	}

	dstPrice, err := o.rates.USDPrice(ctx, dstAsset)
	if err != nil {
		return 0, err
	}

	if srcPrice == 0 {
		return 0, fmt.Errorf("zero price for %s", srcAsset)
	}

	return dstPrice / srcPrice, nil
}

// maxRefund converts min(configured usd cap, relayer balance / k) into
// native wei at the current native token price.
func (o *FeeOracle) maxRefund(ctx context.Context) (*big.Int, error) {
	balance, err := o.reader.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get relayer balance: %w", err)
	}

	nativePrice, err := o.rates.USDPrice(ctx, o.chainConfig.NativeAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to price native asset: %w", err)
	}

	if nativePrice == 0 {
		return nil, fmt.Errorf("zero price for native asset %s", o.chainConfig.NativeAsset)
	}

	capWei := usdToWei(o.chainConfig.RelayerFeeConfig.MaxRefundAmountUSD, nativePrice)

	balanceCap := new(big.Int).Div(balance, big.NewInt(refundBalanceDivisor))
	if balanceCap.Cmp(capWei) < 0 {
		return balanceCap, nil
	}

	return capWei, nil
}

func usdToWei(usd, nativePriceUSD float64) *big.Int {
	native := usd / nativePriceUSD

	wei, _ := new(big.Float).Mul(
		big.NewFloat(native), big.NewFloat(weiPerEther)).Int(nil)

	return wei
}
