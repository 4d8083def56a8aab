package relayerconfig

import (
	"fmt"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
)

const (
	DefaultPort                = uint16(9955)
	DefaultPollingIntervalMs   = uint64(7_000)
	DefaultMaxSleepIntervalMs  = uint64(10_000)
	DefaultBlockConfirmations  = uint64(1)
	DefaultMaxBlockSpan        = uint64(1_000)
	DefaultRelayerProfitPct    = float64(5)
	DefaultMaxRefundAmountUSD  = float64(1)
	DefaultDKGSigningTimeoutMs = uint64(10 * 60 * 1000)
)

type ContractType string

const (
	ContractTypeVAnchor         ContractType = "VAnchor"
	ContractTypeSignatureBridge ContractType = "SignatureBridge"
)

type SigningBackendType string

const (
	SigningBackendMocked  SigningBackendType = "Mocked"
	SigningBackendDKGNode SigningBackendType = "DKGNode"
)

type FeaturesConfig struct {
	GovernanceRelay bool `json:"governanceRelay" toml:"governance_relay"`
	DataQuery       bool `json:"dataQuery" toml:"data_query"`
	PrivateTxRelay  bool `json:"privateTxRelay" toml:"private_tx_relay"`
}

type AssetConfig struct {
	Name     string  `json:"name" toml:"name"`
	Decimals uint8   `json:"decimals" toml:"decimals"`
	Price    float64 `json:"price" toml:"price"`
}

type EventsWatcherConfig struct {
	Enabled                 bool   `json:"enabled" toml:"enabled"`
	PollingIntervalMs       uint64 `json:"pollingIntervalMs" toml:"polling_interval_ms"`
	PrintProgressIntervalMs uint64 `json:"printProgressIntervalMs" toml:"print_progress_interval_ms"`
	MaxBlocksPerStep        uint64 `json:"maxBlocksPerStep" toml:"max_blocks_per_step"`
}

type WithdrawConfig struct {
	WithdrawFeePercentage float64 `json:"withdrawFeePercentage" toml:"withdraw_fee_percentage"`
	WithdrawGaslimitHex   string  `json:"withdrawGaslimit" toml:"withdraw_gaslimit"`
}

type LinkedAnchorConfig struct {
	Type    string `json:"type" toml:"type"`
	Chain   string `json:"chain" toml:"chain"`
	ChainID uint64 `json:"chainId" toml:"chain_id"`
	Address string `json:"address" toml:"address"`
}

type ProposalSigningBackendConfig struct {
	Type SigningBackendType `json:"type" toml:"type"`
	// PrivateKey holds the governor key for the Mocked backend.
	PrivateKey string `json:"privateKey,omitempty" toml:"private_key"`
	// ChainID names the substrate chain running the dkg for the DKGNode backend.
	ChainID uint64 `json:"chainId,omitempty" toml:"chain_id"`
}

type SmartAnchorUpdatesConfig struct {
	Enabled       bool   `json:"enabled" toml:"enabled"`
	MinTimeDelayS uint64 `json:"minTimeDelay" toml:"min_time_delay"`
	MaxTimeDelayS uint64 `json:"maxTimeDelay" toml:"max_time_delay"`
}

type ContractConfig struct {
	Contract               ContractType                  `json:"contract" toml:"contract"`
	Address                string                        `json:"address" toml:"address"`
	DeployedAt             uint64                        `json:"deployedAt" toml:"deployed_at"`
	EventsWatcher          EventsWatcherConfig           `json:"eventsWatcher" toml:"events_watcher"`
	WithdrawConfig         *WithdrawConfig               `json:"withdrawConfig,omitempty" toml:"withdraw_config"`
	LinkedAnchors          []LinkedAnchorConfig          `json:"linkedAnchors,omitempty" toml:"linked_anchors"`
	ProposalSigningBackend *ProposalSigningBackendConfig `json:"proposalSigningBackend,omitempty" toml:"proposal_signing_backend"`
	SmartAnchorUpdates     SmartAnchorUpdatesConfig      `json:"smartAnchorUpdates" toml:"smart_anchor_updates"`
}

type TxQueueConfig struct {
	MaxSleepIntervalMs uint64 `json:"maxSleepIntervalMs" toml:"max_sleep_interval_ms"`
	PollingIntervalMs  uint64 `json:"pollingIntervalMs" toml:"polling_interval_ms"`
}

type RelayerFeeConfig struct {
	RelayerProfitPercent float64 `json:"relayerProfitPercent" toml:"relayer_profit_percent"`
	MaxRefundAmountUSD   float64 `json:"maxRefundAmountUsd" toml:"max_refund_amount_usd"`
}

type EVMChainConfig struct {
	Name               string           `json:"name" toml:"name"`
	ChainID            uint64           `json:"chainId" toml:"chain_id"`
	HTTPEndpoint       string           `json:"httpEndpoint" toml:"http_endpoint"`
	WSEndpoint         string           `json:"wsEndpoint" toml:"ws_endpoint"`
	BlockConfirmations uint64           `json:"blockConfirmations" toml:"block_confirmations"`
	PrivateKey         string           `json:"privateKey" toml:"private_key"`
	Enabled            bool             `json:"enabled" toml:"enabled"`
	ExpectedBlockTimeS uint64           `json:"expectedBlockTime" toml:"expected_block_time"`
	NativeAsset        string           `json:"nativeAsset" toml:"native_asset"`
	TxQueue            TxQueueConfig    `json:"txQueue" toml:"tx_queue"`
	RelayerFeeConfig   RelayerFeeConfig `json:"relayerFeeConfig" toml:"relayer_fee_config"`
	Contracts          []ContractConfig `json:"contracts" toml:"contracts"`
}

type SubstratePalletConfig struct {
	Pallet        string              `json:"pallet" toml:"pallet"`
	PalletIndex   uint8               `json:"palletIndex" toml:"pallet_index"`
	TreeID        uint32              `json:"treeId" toml:"tree_id"`
	DeployedAt    uint64              `json:"deployedAt" toml:"deployed_at"`
	EventsWatcher EventsWatcherConfig `json:"eventsWatcher" toml:"events_watcher"`
}

type SubstrateChainConfig struct {
	Name               string                  `json:"name" toml:"name"`
	ChainID            uint64                  `json:"chainId" toml:"chain_id"`
	HTTPEndpoint       string                  `json:"httpEndpoint" toml:"http_endpoint"`
	WSEndpoint         string                  `json:"wsEndpoint" toml:"ws_endpoint"`
	BlockConfirmations uint64                  `json:"blockConfirmations" toml:"block_confirmations"`
	PrivateKey         string                  `json:"privateKey" toml:"private_key"`
	Enabled            bool                    `json:"enabled" toml:"enabled"`
	ExpectedBlockTimeS uint64                  `json:"expectedBlockTime" toml:"expected_block_time"`
	NativeAsset        string                  `json:"nativeAsset" toml:"native_asset"`
	TxQueue            TxQueueConfig           `json:"txQueue" toml:"tx_queue"`
	Pallets            []SubstratePalletConfig `json:"pallets" toml:"pallets"`
}

type LoggerConfig struct {
	LogLevel    string `json:"logLevel" toml:"log_level"`
	LogFilePath string `json:"logFilePath" toml:"log_file_path"`
	JSONFormat  bool   `json:"jsonFormat" toml:"json_format"`
}

type TelemetryConfig struct {
	PrometheusAddr string `json:"prometheusAddr" toml:"prometheus_addr"`
	DataDogAddr    string `json:"dataDogAddr" toml:"datadog_addr"`
}

type AppConfig struct {
	Port      uint16                           `json:"port" toml:"port"`
	Features  FeaturesConfig                   `json:"features" toml:"features"`
	Assets    map[string]AssetConfig           `json:"assets" toml:"assets"`
	EVM       map[string]*EVMChainConfig       `json:"evm" toml:"evm"`
	Substrate map[string]*SubstrateChainConfig `json:"substrate" toml:"substrate"`
	StorePath string                           `json:"storePath" toml:"store_path"`
	Logger    LoggerConfig                     `json:"logger" toml:"logger"`
	Telemetry TelemetryConfig                  `json:"telemetry" toml:"telemetry"`
}

// EVMChainByID resolves an evm chain section by its numeric chain id.
func (c *AppConfig) EVMChainByID(chainID uint64) *EVMChainConfig {
	for _, chain := range c.EVM {
		if chain.ChainID == chainID {
			return chain
		}
	}

	return nil
}

func (c *AppConfig) SubstrateChainByID(chainID uint64) *SubstrateChainConfig {
	for _, chain := range c.Substrate {
		if chain.ChainID == chainID {
			return chain
		}
	}

	return nil
}

func (c *AppConfig) Validate() error {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	for name, chain := range c.EVM {
		if chain.ChainID == 0 {
			return fmt.Errorf("evm chain %s: chain id not set", name)
		}

		if !common.IsValidURL(chain.HTTPEndpoint) {
			return fmt.Errorf("evm chain %s: invalid http endpoint %q", name, chain.HTTPEndpoint)
		}

		if chain.Enabled && chain.PrivateKey == "" {
			return fmt.Errorf("evm chain %s: private key not set", name)
		}

		if chain.BlockConfirmations == 0 {
			chain.BlockConfirmations = DefaultBlockConfirmations
		}

		if chain.TxQueue.MaxSleepIntervalMs == 0 {
			chain.TxQueue.MaxSleepIntervalMs = DefaultMaxSleepIntervalMs
		}

		if chain.TxQueue.PollingIntervalMs == 0 {
			chain.TxQueue.PollingIntervalMs = DefaultPollingIntervalMs
		}

		if chain.RelayerFeeConfig.RelayerProfitPercent == 0 {
			chain.RelayerFeeConfig.RelayerProfitPercent = DefaultRelayerProfitPct
		}

		if chain.RelayerFeeConfig.MaxRefundAmountUSD == 0 {
			chain.RelayerFeeConfig.MaxRefundAmountUSD = DefaultMaxRefundAmountUSD
		}

		for i := range chain.Contracts {
			contract := &chain.Contracts[i]

			if contract.Contract != ContractTypeVAnchor && contract.Contract != ContractTypeSignatureBridge {
				return fmt.Errorf("evm chain %s: unknown contract type %q", name, contract.Contract)
			}

			if contract.Address == "" {
				return fmt.Errorf("evm chain %s: contract address not set", name)
			}

			if contract.EventsWatcher.PollingIntervalMs == 0 {
				contract.EventsWatcher.PollingIntervalMs = DefaultPollingIntervalMs
			}

			if contract.EventsWatcher.MaxBlocksPerStep == 0 {
				contract.EventsWatcher.MaxBlocksPerStep = DefaultMaxBlockSpan
			}

			if backend := contract.ProposalSigningBackend; backend != nil {
				switch backend.Type {
				case SigningBackendMocked:
					if backend.PrivateKey == "" {
						return fmt.Errorf("evm chain %s: mocked backend needs a private key", name)
					}
				case SigningBackendDKGNode:
					if backend.ChainID == 0 {
						return fmt.Errorf("evm chain %s: dkg backend needs a chain id", name)
					}
				default:
					return fmt.Errorf("evm chain %s: unknown signing backend %q", name, backend.Type)
				}
			}
		}
	}

	for name, chain := range c.Substrate {
		if chain.ChainID == 0 {
			return fmt.Errorf("substrate chain %s: chain id not set", name)
		}

		if !common.IsValidURL(chain.HTTPEndpoint) {
			return fmt.Errorf("substrate chain %s: invalid http endpoint %q", name, chain.HTTPEndpoint)
		}

		if chain.TxQueue.MaxSleepIntervalMs == 0 {
			chain.TxQueue.MaxSleepIntervalMs = DefaultMaxSleepIntervalMs
		}

		if chain.TxQueue.PollingIntervalMs == 0 {
			chain.TxQueue.PollingIntervalMs = DefaultPollingIntervalMs
		}

		for i := range chain.Pallets {
			pallet := &chain.Pallets[i]

			if pallet.EventsWatcher.PollingIntervalMs == 0 {
				pallet.EventsWatcher.PollingIntervalMs = DefaultPollingIntervalMs
			}

			if pallet.EventsWatcher.MaxBlocksPerStep == 0 {
				pallet.EventsWatcher.MaxBlocksPerStep = DefaultMaxBlockSpan
			}
		}
	}

	return nil
}
