package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	apicore "github.com/Ethernal-Tech/anchor-bridge-relayer/api/core"
	apiutils "github.com/Ethernal-Tech/anchor-bridge-relayer/api/utils"
	txrelay "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_relay"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

type SendResponse struct {
	ID       string `json:"id"`
	StatusWS string `json:"statusWs"`
}

type SendControllerImpl struct {
	relay  *txrelay.RelayService
	logger hclog.Logger
}

var _ apicore.APIController = (*SendControllerImpl)(nil)

func NewSendController(relay *txrelay.RelayService, logger hclog.Logger) *SendControllerImpl {
	return &SendControllerImpl{
		relay:  relay,
		logger: logger,
	}
}

func (*SendControllerImpl) GetPathPrefix() string {
	return "send"
}

func (c *SendControllerImpl) GetEndpoints() []*apicore.APIEndpoint {
	return []*apicore.APIEndpoint{
		{Path: "evm/{chainId}/{contract}", Method: http.MethodPost, Handler: c.sendEVM},
	}
}

func (c *SendControllerImpl) sendEVM(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid chain id: %w", err), c.logger)

		return
	}

	request, ok := apiutils.DecodeModel[txrelay.WithdrawRequest](w, r, c.logger)
	if !ok {
		return
	}

	contract := ethcommon.HexToAddress(vars["contract"]).Hex()

	id, err := c.relay.SubmitWithdrawEVM(r.Context(), chainID, contract, &request)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client", err, c.logger)

		return
	}

	apiutils.WriteResponse(w, r, http.StatusOK, SendResponse{
		ID:       id,
		StatusWS: fmt.Sprintf("/ws?id=%s", id),
	}, c.logger)
}
