package params

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsMainnet(t *testing.T) {
	cfg := Default()
	require.Equal(t, Mainnet, cfg.Network)
	require.Equal(t, MainnetREST, cfg.Endpoints.BaseURL)
	require.Equal(t, MainnetWS, cfg.Endpoints.WSURL)
}

func TestLoadFromEnvNetworkSelection(t *testing.T) {
	t.Setenv("HL_NETWORK", "testnet")
	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	require.Equal(t, Testnet, cfg.Network)
	require.Equal(t, TestnetREST, cfg.Endpoints.BaseURL)
	require.Equal(t, TestnetWS, cfg.Endpoints.WSURL)
}

func TestLoadFromEnvURLOverride(t *testing.T) {
	t.Setenv("HL_NETWORK", "testnet")
	t.Setenv("HL_BASE_URL", "http://localhost:9000")
	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000", cfg.Endpoints.BaseURL)
	// WS stays on the selected network when not overridden.
	require.Equal(t, TestnetWS, cfg.Endpoints.WSURL)
}

func TestLoadFromEnvRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("HL_NETWORK", "devnet")
	_, err := LoadFromEnv("")
	require.Error(t, err)
}

func TestLoadFromEnvTuning(t *testing.T) {
	t.Setenv("HL_DMS_MS", "15000")
	t.Setenv("HL_STALENESS_MS", "junk")
	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	require.Equal(t, int64(15000), cfg.DMS.Duration.Milliseconds())
	require.Equal(t, Default().Session.StalenessTimeout, cfg.Session.StalenessTimeout)
}
