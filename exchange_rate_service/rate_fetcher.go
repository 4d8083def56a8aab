package ratefetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/fetchers"
	"github.com/hashicorp/go-hclog"
)

const (
	USD = "USD"

	priceCacheTime = time.Minute
)

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// RateFetcher quotes asset prices in usd, caching each symbol for a
// minute. The Static provider serves configured prices for tokens that
// have no market, the others query public tickers.
type RateFetcher struct {
	fetcher core.ExchangeRateFetcher
	logger  hclog.Logger

	cache map[string]cachedPrice
	mutex sync.Mutex
}

func NewRateFetcher(
	provider core.ExchangeProvider, staticPrices map[string]float64, logger hclog.Logger,
) (*RateFetcher, error) {
	var fetcher core.ExchangeRateFetcher

	switch provider {
	case core.Binance:
		fetcher = &fetchers.BinanceFetcher{}
	case core.Kraken:
		fetcher = &fetchers.KrakenFetcher{}
	case core.Static:
		fetcher = &fetchers.StaticFetcher{Prices: staticPrices}
	default:
		return nil, fmt.Errorf("unsupported exchange provider: %d", provider)
	}

	return &RateFetcher{
		fetcher: fetcher,
		logger:  logger.Named("rate_fetcher").With("provider", provider.String()),
		cache:   map[string]cachedPrice{},
	}, nil
}

// USDPrice returns the usd price of one unit of symbol.
func (r *RateFetcher) USDPrice(ctx context.Context, symbol string) (float64, error) {
	r.mutex.Lock()

	if cached, exists := r.cache[symbol]; exists && time.Since(cached.fetchedAt) < priceCacheTime {
		r.mutex.Unlock()

		return cached.price, nil
	}

	r.mutex.Unlock()

	price, err := r.fetcher.FetchRate(ctx, core.FetchRateParams{Base: USD, Currency: symbol})
	if err != nil {
		return 0, fmt.Errorf("error fetching rate for %s: %w", symbol, err)
	}

	r.logger.Debug("fetched rate", "symbol", symbol, "price", price)

	r.mutex.Lock()
	r.cache[symbol] = cachedPrice{price: price, fetchedAt: time.Now()}
	r.mutex.Unlock()

	return price, nil
}
