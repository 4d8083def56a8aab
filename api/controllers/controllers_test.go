package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	apicore "github.com/Ethernal-Tech/anchor-bridge-relayer/api/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	databaseaccess "github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore/database_access"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const testAnchor = "0x91eB86019FD8D7c5d9605b6FD723341159c9CEA3"

func newRouter(controllers ...apicore.APIController) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	for _, controller := range controllers {
		for _, endpoint := range controller.GetEndpoints() {
			path := fmt.Sprintf("/api/v1/%s/%s", controller.GetPathPrefix(), endpoint.Path)
			router.HandleFunc(path, endpoint.Handler).Methods(endpoint.Method)
		}
	}

	return router
}

func leavesAppConfig(dataQuery bool) *relayerconfig.AppConfig {
	return &relayerconfig.AppConfig{
		Features: relayerconfig.FeaturesConfig{DataQuery: dataQuery},
		EVM: map[string]*relayerconfig.EVMChainConfig{
			"hermes": {
				Name:    "hermes",
				ChainID: 5001,
				Contracts: []relayerconfig.ContractConfig{{
					Contract:      relayerconfig.ContractTypeVAnchor,
					Address:       testAnchor,
					EventsWatcher: relayerconfig.EventsWatcherConfig{Enabled: true},
				}},
			},
		},
	}
}

func TestLeavesController(t *testing.T) {
	logger := hclog.NewNullLogger()

	store, err := databaseaccess.NewStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	defer store.Close()

	tree := relayerstore.EVMTreeKey(
		common.NewEVMChainID(5001), ethcommon.HexToAddress(testAnchor).Hex())

	for i := 0; i < 4; i++ {
		_, err := store.AppendLeaf(tree, [32]byte{byte(i)}, uint64(100+i))
		require.NoError(t, err)
	}

	t.Run("TestReturnsLeaves", func(t *testing.T) {
		router := newRouter(NewLeavesController(leavesAppConfig(true), store, logger))

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(
			http.MethodGet, "/api/v1/leaves/evm/5001/"+testAnchor, nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		var response LeavesResponse

		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Leaves, 4)
		require.Equal(t, uint64(103), response.LastQueriedBlock)
		require.Equal(t,
			"0x0200000000000000000000000000000000000000000000000000000000000000",
			response.Leaves[2])
	})

	t.Run("TestRangeQuery", func(t *testing.T) {
		router := newRouter(NewLeavesController(leavesAppConfig(true), store, logger))

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(
			http.MethodGet, "/api/v1/leaves/evm/5001/"+testAnchor+"?start=1&end=3", nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		var response LeavesResponse

		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		require.Len(t, response.Leaves, 2)
	})

	t.Run("TestForbiddenWithoutDataQuery", func(t *testing.T) {
		router := newRouter(NewLeavesController(leavesAppConfig(false), store, logger))

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(
			http.MethodGet, "/api/v1/leaves/evm/5001/"+testAnchor, nil))

		require.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("TestUnknownChain", func(t *testing.T) {
		router := newRouter(NewLeavesController(leavesAppConfig(true), store, logger))

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(
			http.MethodGet, "/api/v1/leaves/evm/7777/"+testAnchor, nil))

		require.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("TestUnknownContract", func(t *testing.T) {
		router := newRouter(NewLeavesController(leavesAppConfig(true), store, logger))

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(
			http.MethodGet,
			"/api/v1/leaves/evm/5001/0x0000000000000000000000000000000000000001", nil))

		require.Equal(t, http.StatusBadRequest, recorder.Code)

		var errResponse map[string]map[string]string

		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &errResponse))
		require.Equal(t, "Client", errResponse["error"]["kind"])
	})
}
