package fetchers

import (
	"context"
	"fmt"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/core"
)

// StaticFetcher serves prices pinned in configuration, for local chains
// whose tokens have no market.
type StaticFetcher struct {
	Prices map[string]float64
}

var _ core.ExchangeRateFetcher = (*StaticFetcher)(nil)

func (s *StaticFetcher) FetchRate(_ context.Context, params core.FetchRateParams) (float64, error) {
	price, exists := s.Prices[params.Currency]
	if !exists {
		return 0, fmt.Errorf("no configured price for %s", params.Currency)
	}

	return price, nil
}
