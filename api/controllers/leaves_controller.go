package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apicore "github.com/Ethernal-Tech/anchor-bridge-relayer/api/core"
	apiutils "github.com/Ethernal-Tech/anchor-bridge-relayer/api/utils"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

type LeavesResponse struct {
	Leaves           []string `json:"leaves"`
	LastQueriedBlock uint64   `json:"lastQueriedBlock"`
}

type LeavesControllerImpl struct {
	appConfig *relayerconfig.AppConfig
	store     relayerstore.Store
	logger    hclog.Logger
}

var _ apicore.APIController = (*LeavesControllerImpl)(nil)

func NewLeavesController(
	appConfig *relayerconfig.AppConfig, store relayerstore.Store, logger hclog.Logger,
) *LeavesControllerImpl {
	return &LeavesControllerImpl{
		appConfig: appConfig,
		store:     store,
		logger:    logger,
	}
}

func (*LeavesControllerImpl) GetPathPrefix() string {
	return "leaves"
}

func (c *LeavesControllerImpl) GetEndpoints() []*apicore.APIEndpoint {
	return []*apicore.APIEndpoint{
		{Path: "evm/{chainId}/{contract}", Method: http.MethodGet, Handler: c.getEVMLeaves},
		{Path: "substrate/{chainId}/{treeId}", Method: http.MethodGet, Handler: c.getSubstrateLeaves},
		{Path: "substrate/{chainId}/{treeId}/{palletId}", Method: http.MethodGet, Handler: c.getSubstrateLeaves},
	}
}

func (c *LeavesControllerImpl) getEVMLeaves(w http.ResponseWriter, r *http.Request) {
	if !c.appConfig.Features.DataQuery {
		apiutils.WriteErrorResponse(w, r, http.StatusForbidden, "Client",
			errors.New("data query is not enabled for relayer"), c.logger)

		return
	}

	vars := mux.Vars(r)

	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid chain id: %w", err), c.logger)

		return
	}

	chainConfig := c.appConfig.EVMChainByID(chainID)
	if chainConfig == nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("unsupported chain: %d", chainID), c.logger)

		return
	}

	contract := ethcommon.HexToAddress(vars["contract"]).Hex()

	var watched bool

	for i := range chainConfig.Contracts {
		contractConfig := &chainConfig.Contracts[i]
		if strings.EqualFold(contractConfig.Address, contract) &&
			contractConfig.Contract == relayerconfig.ContractTypeVAnchor &&
			contractConfig.EventsWatcher.Enabled {
			watched = true

			break
		}
	}

	if !watched {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("unsupported contract %s for chain %d", contract, chainID), c.logger)

		return
	}

	tree := relayerstore.EVMTreeKey(common.NewEVMChainID(chainID), contract)

	c.writeLeaves(w, r, tree)
}

func (c *LeavesControllerImpl) getSubstrateLeaves(w http.ResponseWriter, r *http.Request) {
	if !c.appConfig.Features.DataQuery {
		apiutils.WriteErrorResponse(w, r, http.StatusForbidden, "Client",
			errors.New("data query is not enabled for relayer"), c.logger)

		return
	}

	vars := mux.Vars(r)

	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid chain id: %w", err), c.logger)

		return
	}

	if c.appConfig.SubstrateChainByID(chainID) == nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("unsupported chain: %d", chainID), c.logger)

		return
	}

	treeID, err := strconv.ParseUint(vars["treeId"], 10, 32)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("invalid tree id: %w", err), c.logger)

		return
	}

	var palletIndex uint64

	if palletParam, exists := vars["palletId"]; exists {
		palletIndex, err = strconv.ParseUint(palletParam, 10, 8)
		if err != nil {
			apiutils.WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
				fmt.Errorf("invalid pallet id: %w", err), c.logger)

			return
		}
	}

	tree := relayerstore.SubstrateTreeKey(
		common.NewSubstrateChainID(chainID), uint32(treeID), uint8(palletIndex))

	c.writeLeaves(w, r, tree)
}

func (c *LeavesControllerImpl) writeLeaves(w http.ResponseWriter, r *http.Request, tree relayerstore.TreeKey) {
	meta, err := c.store.GetLeafMeta(tree)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusInternalServerError, "Store", err, c.logger)

		return
	}

	from, to := uint64(0), meta.Count

	query := r.URL.Query()

	if startParam := query.Get("start"); startParam != "" {
		if parsed, err := strconv.ParseUint(startParam, 10, 64); err == nil {
			from = parsed
		}
	}

	if endParam := query.Get("end"); endParam != "" {
		if parsed, err := strconv.ParseUint(endParam, 10, 64); err == nil && parsed < to {
			to = parsed
		}
	}

	leaves, err := c.store.GetLeaves(tree, from, to)
	if err != nil {
		apiutils.WriteErrorResponse(w, r, http.StatusInternalServerError, "Store", err, c.logger)

		return
	}

	response := LeavesResponse{
		Leaves:           make([]string, 0, len(leaves)),
		LastQueriedBlock: meta.LastBlock,
	}

	for _, leaf := range leaves {
		response.Leaves = append(response.Leaves, common.EncodeHex(leaf[:]))
	}

	apiutils.WriteResponse(w, r, http.StatusOK, response, c.logger)
}
