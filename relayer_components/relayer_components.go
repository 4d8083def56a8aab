package relayercomponents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/api"
	apicore "github.com/Ethernal-Tech/anchor-bridge-relayer/api/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/api/controllers"
	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/evm"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/chain/substrate"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	eventswatcher "github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher"
	watchercore "github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/events_watcher/handlers"
	ratefetcher "github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service"
	exchangecore "github.com/Ethernal-Tech/anchor-bridge-relayer/exchange_rate_service/core"
	proposalsigning "github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing"
	signingcore "github.com/Ethernal-Tech/anchor-bridge-relayer/proposal_signing/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/proposals"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerconfig"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
	databaseaccess "github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore/database_access"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/telemetry"
	txqueue "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue"
	txqueuecore "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_queue/core"
	txrelay "github.com/Ethernal-Tech/anchor-bridge-relayer/tx_relay"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

// RelayerComponents wires the store, chain clients, watchers, signing
// backends, tx queues and the api from one loaded configuration.
type RelayerComponents struct {
	appConfig *relayerconfig.AppConfig
	logger    hclog.Logger

	store     relayerstore.Store
	bus       *relayerevents.Bus
	telemetry *telemetry.Telemetry

	evmClients       map[uint64]*evm.Client
	evmSenders       map[uint64]*evm.TxSender
	substrateClients map[uint64]*substrate.Client
	queues           map[common.ChainID]*txqueue.TxQueueImpl
	watchers         []*eventswatcher.EventWatcherImpl
	relayService     *txrelay.RelayService
	api              apicore.API

	cancelCtx context.CancelFunc
	wg        sync.WaitGroup
}

func NewRelayerComponents(
	appConfig *relayerconfig.AppConfig, logger hclog.Logger,
) (*RelayerComponents, error) {
	rc := &RelayerComponents{
		appConfig:        appConfig,
		logger:           logger,
		bus:              relayerevents.NewBus(),
		evmClients:       map[uint64]*evm.Client{},
		substrateClients: map[uint64]*substrate.Client{},
		queues:           map[common.ChainID]*txqueue.TxQueueImpl{},
	}

	store, err := databaseaccess.NewStore(appConfig.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open relayer store: %w", err)
	}

	rc.store = store

	rc.telemetry = telemetry.NewTelemetry(telemetry.TelemetryConfig{
		PrometheusAddr: appConfig.Telemetry.PrometheusAddr,
		DataDogAddr:    appConfig.Telemetry.DataDogAddr,
	}, logger)

	if err := rc.buildChains(); err != nil {
		return nil, err
	}

	if err := rc.buildWatchers(); err != nil {
		return nil, err
	}

	if err := rc.buildRelayService(); err != nil {
		return nil, err
	}

	return rc, nil
}

// buildChains creates clients, tx senders and queues for every enabled chain.
func (rc *RelayerComponents) buildChains() error {
	senders := map[uint64]*evm.TxSender{}

	for name, chainConfig := range rc.appConfig.EVM {
		if !chainConfig.Enabled {
			rc.logger.Info("evm chain disabled", "chain", name)

			continue
		}

		client, err := evm.NewClient(chainConfig, rc.logger)
		if err != nil {
			return fmt.Errorf("failed to create evm client for %s: %w", name, err)
		}

		rc.evmClients[chainConfig.ChainID] = client

		sender, err := evm.NewTxSender(client, chainConfig.PrivateKey, rc.logger)
		if err != nil {
			return fmt.Errorf("failed to create tx sender for %s: %w", name, err)
		}

		senders[chainConfig.ChainID] = sender

		chainID := common.NewEVMChainID(chainConfig.ChainID)

		rc.queues[chainID] = txqueue.NewTxQueue(txqueuecore.QueueConfig{
			ChainID:           chainID,
			PollingInterval:   time.Duration(chainConfig.TxQueue.PollingIntervalMs) * time.Millisecond,
			MaxSleepInterval:  time.Duration(chainConfig.TxQueue.MaxSleepIntervalMs) * time.Millisecond,
			Confirmations:     chainConfig.BlockConfirmations,
			ExpectedBlockTime: time.Duration(chainConfig.ExpectedBlockTimeS) * time.Second,
		}, rc.store, txqueue.NewEVMSubmitter(sender, chainConfig.BlockConfirmations), rc.bus, rc.logger)
	}

	rc.evmSenders = senders

	for name, chainConfig := range rc.appConfig.Substrate {
		if !chainConfig.Enabled {
			rc.logger.Info("substrate chain disabled", "chain", name)

			continue
		}

		client, err := substrate.NewClient(chainConfig, rc.logger)
		if err != nil {
			return fmt.Errorf("failed to create substrate client for %s: %w", name, err)
		}

		rc.substrateClients[chainConfig.ChainID] = client

		chainID := common.NewSubstrateChainID(chainConfig.ChainID)

		rc.queues[chainID] = txqueue.NewTxQueue(txqueuecore.QueueConfig{
			ChainID:           chainID,
			PollingInterval:   time.Duration(chainConfig.TxQueue.PollingIntervalMs) * time.Millisecond,
			MaxSleepInterval:  time.Duration(chainConfig.TxQueue.MaxSleepIntervalMs) * time.Millisecond,
			Confirmations:     chainConfig.BlockConfirmations,
			ExpectedBlockTime: time.Duration(chainConfig.ExpectedBlockTimeS) * time.Second,
		}, rc.store, txqueue.NewSubstrateSubmitter(client), rc.bus, rc.logger)
	}

	return nil
}

// buildWatchers creates one watcher per watched contract or pallet, with
// the handlers its configuration asks for.
func (rc *RelayerComponents) buildWatchers() error {
	enqueuers := map[common.ChainID]handlers.Enqueuer{}
	for chainID, queue := range rc.queues {
		enqueuers[chainID] = queue
	}

	dkgBackends := map[uint64]*proposalsigning.DKGBackend{}

	for name, chainConfig := range rc.appConfig.EVM {
		if !chainConfig.Enabled {
			continue
		}

		client := rc.evmClients[chainConfig.ChainID]
		chainID := common.NewEVMChainID(chainConfig.ChainID)

		for i := range chainConfig.Contracts {
			contractConfig := &chainConfig.Contracts[i]
			if contractConfig.Contract != relayerconfig.ContractTypeVAnchor ||
				!contractConfig.EventsWatcher.Enabled {
				continue
			}

			address := ethcommon.HexToAddress(contractConfig.Address).Hex()
			tree := relayerstore.EVMTreeKey(chainID, address)

			watcherHandlers := []watchercore.EventHandler{
				handlers.NewLeafIndexerHandler(rc.store, tree, rc.bus, rc.logger),
			}

			if rc.appConfig.Features.GovernanceRelay && contractConfig.ProposalSigningBackend != nil {
				backend, err := rc.buildSigningBackend(contractConfig.ProposalSigningBackend, dkgBackends)
				if err != nil {
					return fmt.Errorf("chain %s contract %s: %w", name, address, err)
				}

				linked := make([]handlers.LinkedAnchor, 0, len(contractConfig.LinkedAnchors))

				for _, anchor := range contractConfig.LinkedAnchors {
					linkedChainID := common.NewEVMChainID(anchor.ChainID)
					linked = append(linked, handlers.LinkedAnchor{
						Resource: proposals.NewResourceID(
							ethcommon.HexToAddress(anchor.Address), linkedChainID),
						ChainID: linkedChainID,
					})
				}

				srcResource := proposals.NewResourceID(ethcommon.HexToAddress(address), chainID)

				watcherHandlers = append(watcherHandlers, handlers.NewAnchorEdgeHandler(
					rc.store, backend, enqueuers, srcResource, linked, rc.logger))
			}

			rc.watchers = append(rc.watchers, eventswatcher.NewEventWatcher(
				client, rc.store, watcherHandlers, watchercore.WatcherConfig{
					ChainID:               chainID,
					Target:                address,
					Kinds:                 []chaincore.EventKind{chaincore.EventKindNewCommitment},
					DeployedAt:            contractConfig.DeployedAt,
					Confirmations:         chainConfig.BlockConfirmations,
					PollingInterval:       time.Duration(contractConfig.EventsWatcher.PollingIntervalMs) * time.Millisecond,
					PrintProgressInterval: time.Duration(contractConfig.EventsWatcher.PrintProgressIntervalMs) * time.Millisecond,
					MaxBlocksPerStep:      contractConfig.EventsWatcher.MaxBlocksPerStep,
				}, rc.logger))
		}
	}

	for _, chainConfig := range rc.appConfig.Substrate {
		if !chainConfig.Enabled {
			continue
		}

		client := rc.substrateClients[chainConfig.ChainID]
		chainID := common.NewSubstrateChainID(chainConfig.ChainID)

		for i := range chainConfig.Pallets {
			palletConfig := &chainConfig.Pallets[i]
			if !palletConfig.EventsWatcher.Enabled {
				continue
			}

			tree := relayerstore.SubstrateTreeKey(chainID, palletConfig.TreeID, palletConfig.PalletIndex)

			rc.watchers = append(rc.watchers, eventswatcher.NewEventWatcher(
				client, rc.store, []watchercore.EventHandler{
					handlers.NewLeafIndexerHandler(rc.store, tree, rc.bus, rc.logger),
				}, watchercore.WatcherConfig{
					ChainID:          chainID,
					Target:           palletConfig.Pallet,
					Kinds:            []chaincore.EventKind{chaincore.EventKindNewCommitment},
					DeployedAt:       palletConfig.DeployedAt,
					Confirmations:    chainConfig.BlockConfirmations,
					PollingInterval:  time.Duration(palletConfig.EventsWatcher.PollingIntervalMs) * time.Millisecond,
					MaxBlocksPerStep: palletConfig.EventsWatcher.MaxBlocksPerStep,
				}, rc.logger))
		}
	}

	// one ProposalSigned watcher per dkg chain in use
	for dkgChainID, backend := range dkgBackends {
		client := rc.substrateClients[dkgChainID]
		chainConfig := rc.appConfig.SubstrateChainByID(dkgChainID)

		rc.watchers = append(rc.watchers, eventswatcher.NewEventWatcher(
			client, rc.store, []watchercore.EventHandler{
				handlers.NewDKGSignedHandler(backend, enqueuers, rc.bus, rc.logger),
			}, watchercore.WatcherConfig{
				ChainID:       common.NewSubstrateChainID(dkgChainID),
				Target:        "DKGProposalHandler",
				Kinds:         []chaincore.EventKind{chaincore.EventKindProposalSigned},
				Confirmations: chainConfig.BlockConfirmations,
			}, rc.logger))
	}

	return nil
}

func (rc *RelayerComponents) buildSigningBackend(
	backendConfig *relayerconfig.ProposalSigningBackendConfig,
	dkgBackends map[uint64]*proposalsigning.DKGBackend,
) (signingcore.Backend, error) {
	switch backendConfig.Type {
	case relayerconfig.SigningBackendMocked:
		return proposalsigning.NewMockedBackend(backendConfig.PrivateKey, rc.bus, rc.logger)
	case relayerconfig.SigningBackendDKGNode:
		if backend, exists := dkgBackends[backendConfig.ChainID]; exists {
			return backend, nil
		}

		client, exists := rc.substrateClients[backendConfig.ChainID]
		if !exists {
			return nil, fmt.Errorf("dkg chain %d is not configured", backendConfig.ChainID)
		}

		backend := proposalsigning.NewDKGBackend(
			client, time.Duration(relayerconfig.DefaultDKGSigningTimeoutMs)*time.Millisecond,
			rc.bus, rc.logger)
		dkgBackends[backendConfig.ChainID] = backend

		return backend, nil
	default:
		return nil, fmt.Errorf("unknown signing backend type %q", backendConfig.Type)
	}
}

func (rc *RelayerComponents) buildRelayService() error {
	staticPrices := map[string]float64{}
	for symbol, asset := range rc.appConfig.Assets {
		staticPrices[symbol] = asset.Price
	}

	rates, err := ratefetcher.NewRateFetcher(exchangecore.Static, staticPrices, rc.logger)
	if err != nil {
		return err
	}

	oracles := map[uint64]*txrelay.FeeOracle{}
	relayers := map[uint64]ethcommon.Address{}
	queueEnqueuers := map[common.ChainID]txrelay.Enqueuer{}

	for chainID, queue := range rc.queues {
		queueEnqueuers[chainID] = queue
	}

	for _, chainConfig := range rc.appConfig.EVM {
		if !chainConfig.Enabled {
			continue
		}

		sender := rc.evmSenders[chainConfig.ChainID]
		oracles[chainConfig.ChainID] = txrelay.NewFeeOracle(chainConfig, sender, rates, rc.logger)
		relayers[chainConfig.ChainID] = sender.Address()
	}

	rc.relayService = txrelay.NewRelayService(
		rc.appConfig, oracles, queueEnqueuers, relayers, rc.logger)

	return nil
}

// Start launches every component and returns once they are running.
func (rc *RelayerComponents) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	rc.cancelCtx = cancel

	if rc.telemetry.IsEnabled() {
		if err := rc.telemetry.Start(); err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}
	}

	apiControllers := []apicore.APIController{
		controllers.NewLeavesController(rc.appConfig, rc.store, rc.logger),
		controllers.NewFeeController(rc.relayService, rc.logger),
		controllers.NewSendController(rc.relayService, rc.logger),
	}

	apiImpl, err := api.NewAPI(ctx, apicore.APIConfig{Port: rc.appConfig.Port}, apiControllers, rc.bus, rc.logger)
	if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}

	rc.api = apiImpl

	for _, watcher := range rc.watchers {
		watcher := watcher

		rc.wg.Add(1)

		go func() {
			defer rc.wg.Done()

			if err := watcher.Start(ctx); err != nil {
				rc.logger.Error("watcher stopped with error", "err", err)
			}
		}()
	}

	for _, queue := range rc.queues {
		queue := queue

		rc.wg.Add(1)

		go func() {
			defer rc.wg.Done()

			if err := queue.Start(ctx); err != nil {
				rc.logger.Error("tx queue stopped with error", "err", err)
			}
		}()
	}

	rc.wg.Add(1)

	go func() {
		defer rc.wg.Done()

		apiImpl.Start()
	}()

	rc.logger.Info("relayer components started",
		"watchers", len(rc.watchers), "queues", len(rc.queues), "port", rc.appConfig.Port)

	return nil
}

// Stop signals shutdown and waits for every task to finish its current
// atomic step.
func (rc *RelayerComponents) Stop() error {
	if rc.cancelCtx != nil {
		rc.cancelCtx()
	}

	if rc.api != nil {
		if err := rc.api.Dispose(); err != nil {
			rc.logger.Error("error while disposing api", "err", err)
		}
	}

	rc.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.telemetry.Close(shutdownCtx); err != nil {
		rc.logger.Error("error while closing telemetry", "err", err)
	}

	for _, client := range rc.evmClients {
		client.Close()
	}

	for _, client := range rc.substrateClients {
		client.Close()
	}

	return rc.store.Close()
}
