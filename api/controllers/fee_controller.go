package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	apicore "github.com/Ethernal-Tech/anchor-bridge-relayer/api/core"
	apiutils "github.com/Ethernal-Tech/anchor-bridge-relayer/api/utils"
	txrelay "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_relay"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

type FeeInfoResponse struct {
	EstimatedFee       string `json:"estimatedFee"`
	GasPrice           string `json:"gasPrice"`
	MaxRefund          string `json:"maxRefund"`
	RefundExchangeRate string `json:"refundExchangeRate"`
	Timestamp          string `json:"timestamp"`
	TTLSeconds         uint64 `json:"ttl"`
}

type FeeControllerImpl struct {
	relay  *txrelay.RelayService
	logger hclog.Logger
}

var _ apicore.APIController = (*FeeControllerImpl)(nil)

func NewFeeController(relay *txrelay.RelayService, logger hclog.Logger) *FeeControllerImpl {
	return &FeeControllerImpl{
		relay:  relay,
		logger: logger,
	}
}

func (*FeeControllerImpl) GetPathPrefix() string {
	return "fee_info"
}

func (c *FeeControllerImpl) GetEndpoints() []*apicore.APIEndpoint {
	return []*apicore.APIEndpoint{
		{Path: "{chainId}/{contract}", Method: http.MethodGet, Handler: c.getFeeInfo},
	}
}

func (c *FeeControllerImpl) getFeeInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid chain id: %w", err), c.logger)

		return
	}

	oracle := c.relay.Oracle(chainID)
	if oracle == nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("unsupported chain: %d", chainID), c.logger)

		return
	}

	gasAmountParam := r.URL.Query().Get("gas_amount")
	if gasAmountParam == "" {
		gasAmountParam = r.URL.Query().Get("gasAmount")
	}

	gasAmount, err := strconv.ParseUint(gasAmountParam, 10, 64)
	if err != nil || gasAmount == 0 {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid gas_amount %q", gasAmountParam), c.logger)

		return
	}

	contract := ethcommon.HexToAddress(vars["contract"]).Hex()

	quote, err := oracle.GetFeeInfo(r.Context(), contract, gasAmount)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusInternalServerError, "Network", err, c.logger)

		return
	}

	apiutils.WriteResponse(w, r, http.StatusOK, FeeInfoResponse{
		EstimatedFee:       quote.EstimatedFee.String(),
		GasPrice:           quote.GasPrice.String(),
		MaxRefund:          quote.MaxRefund.String(),
		RefundExchangeRate: strconv.FormatFloat(quote.RefundExchangeRate, 'f', -1, 64),
		Timestamp:          quote.Timestamp.Format(time.RFC3339),
		TTLSeconds:         quote.TTLSeconds,
	}, c.logger)
}
