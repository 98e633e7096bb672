package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.EqualValues(t, 100, cfg.Network.GenesisBaseFee)
	assert.Equal(t, "chain.car", cfg.Repo.CARPath)
	assert.Equal(t, "chain.idx", cfg.Repo.IndexPath)
	assert.Equal(t, "kv", cfg.Repo.KVPath)
}

func TestConfigRoundtrip(t *testing.T) {
	dir := t.TempDir()

	cfg := NewDefaultConfig()
	cfg.Network.ForkUpgrade.UpgradeBreezeHeight = 41280

	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.WriteFile(cfgPath))

	cfgOut, err := ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, cfgOut)
}

func TestReadFileAppliesDefaultsToMissingFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[repo]
  carPath = "custom.car"
`), 0644))

	cfg, err := ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "custom.car", cfg.Repo.CARPath)
	assert.Equal(t, "kv", cfg.Repo.KVPath)
	assert.EqualValues(t, 100, cfg.Network.GenesisBaseFee)
}

func TestNetworkVersionAtFollowsUpgradeSchedule(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Network.ForkUpgrade = &ForkUpgradeConfig{
		UpgradeBreezeHeight:   -1,
		UpgradeSmokeHeight:    0,
		UpgradeIgnitionHeight: 100,
		UpgradeActorsV2Height: 200,
		UpgradeTapeHeight:     300,
		UpgradeLiftoffHeight:  400,
	}

	assert.Equal(t, network.Version2, cfg.Network.NetworkVersionAt(0))
	assert.Equal(t, network.Version2, cfg.Network.NetworkVersionAt(99))
	assert.Equal(t, network.Version3, cfg.Network.NetworkVersionAt(100))
	assert.Equal(t, network.Version4, cfg.Network.NetworkVersionAt(200))
	assert.Equal(t, network.Version5, cfg.Network.NetworkVersionAt(300))
	assert.Equal(t, network.Version5, cfg.Network.NetworkVersionAt(400))
}
