package fetchers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/core"
)

type KrakenResponse struct {
	Result map[string]struct {
		C []string `json:"c"`
	} `json:"result"`
}

type KrakenFetcher struct{}

var _ core.ExchangeRateFetcher = (*KrakenFetcher)(nil)

func (k *KrakenFetcher) FetchRate(ctx context.Context, params core.FetchRateParams) (float64, error) {
	pair := params.Currency + params.Base
	url := fmt.Sprintf("https://api.kraken.com/0/public/Ticker?pair=%s", pair)

	kraken, err := common.HTTPGet[*KrakenResponse](ctx, url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price rate from Kraken: %w", err)
	}

	res, exists := kraken.Result[pair]
	if !exists || len(res.C) == 0 {
		return 0, fmt.Errorf("no Kraken ticker for pair %s", pair)
	}

	price, err := strconv.ParseFloat(res.C[0], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to convert price from Kraken to float: %w", err)
	}

	return price, nil
}
