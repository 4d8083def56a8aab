package core

import "context"

// FetchRateParams names the pair to quote: Currency priced in Base.
type FetchRateParams struct {
	Base     string
	Currency string
}

type ExchangeRateFetcher interface {
	FetchRate(ctx context.Context, params FetchRateParams) (float64, error)
}
