package relayerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDirs(t *testing.T) {
	writeFile := func(t *testing.T, dir, name, content string) {
		t.Helper()

		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	t.Run("TestLoadSingleJSON", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.json", `{
			"port": 9955,
			"features": {"dataQuery": true},
			"evm": {
				"hermes": {
					"name": "hermes",
					"chainId": 5001,
					"httpEndpoint": "http://localhost:8545",
					"wsEndpoint": "ws://localhost:8545",
					"privateKey": "0000000000000000000000000000000000000000000000000000000000000001",
					"enabled": true
				}
			}
		}`)

		config, err := LoadConfigDirs([]string{dir})
		require.NoError(t, err)
		require.Equal(t, uint16(9955), config.Port)
		require.True(t, config.Features.DataQuery)
		require.Len(t, config.EVM, 1)
		require.Equal(t, uint64(5001), config.EVM["hermes"].ChainID)
		// defaults filled by validation
		require.Equal(t, DefaultPollingIntervalMs, config.EVM["hermes"].TxQueue.PollingIntervalMs)
	})

	t.Run("TestLoadTOMLAndMerge", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a_base.toml", `
port = 9955

[features]
governance_relay = true

[evm.hermes]
name = "hermes"
chain_id = 5001
http_endpoint = "http://localhost:8545"
ws_endpoint = "ws://localhost:8545"
private_key = "0000000000000000000000000000000000000000000000000000000000000001"
enabled = true
`)
		writeFile(t, dir, "b_extra.toml", `
[evm.athena]
name = "athena"
chain_id = 5002
http_endpoint = "http://localhost:8546"
ws_endpoint = "ws://localhost:8546"
private_key = "0000000000000000000000000000000000000000000000000000000000000002"
enabled = true
`)

		config, err := LoadConfigDirs([]string{dir})
		require.NoError(t, err)
		require.Len(t, config.EVM, 2)
		require.True(t, config.Features.GovernanceRelay)
		require.NotNil(t, config.EVMChainByID(5002))
	})

	t.Run("TestEnvSubstitution", func(t *testing.T) {
		t.Setenv("RELAYER_TEST_PK", "00000000000000000000000000000000000000000000000000000000000000aa")

		dir := t.TempDir()
		writeFile(t, dir, "main.json", `{
			"evm": {
				"hermes": {
					"name": "hermes",
					"chainId": 5001,
					"httpEndpoint": "http://localhost:8545",
					"privateKey": "$RELAYER_TEST_PK",
					"enabled": true
				}
			}
		}`)

		config, err := LoadConfigDirs([]string{dir})
		require.NoError(t, err)
		require.Equal(t,
			"00000000000000000000000000000000000000000000000000000000000000aa",
			config.EVM["hermes"].PrivateKey)
	})

	t.Run("TestEnvSubstitutionMissing", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.json", `{
			"evm": {
				"hermes": {
					"name": "hermes",
					"chainId": 5001,
					"httpEndpoint": "http://localhost:8545",
					"privateKey": "$RELAYER_TEST_PK_DOES_NOT_EXIST",
					"enabled": true
				}
			}
		}`)

		_, err := LoadConfigDirs([]string{dir})
		require.Error(t, err)
		require.ErrorContains(t, err, "RELAYER_TEST_PK_DOES_NOT_EXIST")
	})

	t.Run("TestCommandSubstitution", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.json", `{
			"evm": {
				"hermes": {
					"name": "hermes",
					"chainId": 5001,
					"httpEndpoint": "http://localhost:8545",
					"privateKey": "> echo 00000000000000000000000000000000000000000000000000000000000000bb",
					"enabled": true
				}
			}
		}`)

		config, err := LoadConfigDirs([]string{dir})
		require.NoError(t, err)
		require.Equal(t,
			"00000000000000000000000000000000000000000000000000000000000000bb",
			config.EVM["hermes"].PrivateKey)
	})

	t.Run("TestEmptyDir", func(t *testing.T) {
		_, err := LoadConfigDirs([]string{t.TempDir()})
		require.Error(t, err)
		require.ErrorContains(t, err, "no config files")
	})

	t.Run("TestInvalidContractType", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.json", `{
			"evm": {
				"hermes": {
					"name": "hermes",
					"chainId": 5001,
					"httpEndpoint": "http://localhost:8545",
					"privateKey": "0000000000000000000000000000000000000000000000000000000000000001",
					"enabled": true,
					"contracts": [{"contract": "Mixer", "address": "0x01"}]
				}
			}
		}`)

		_, err := LoadConfigDirs([]string{dir})
		require.Error(t, err)
		require.ErrorContains(t, err, "unknown contract type")
	})
}
