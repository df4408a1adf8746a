package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"aquos/internal/aquos"
	"aquos/internal/cli"
	"aquos/internal/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestConfigManager(t *testing.T) *cli.ConfigManager {
	t.Helper()
	return cli.NewConfigManager(filepath.Join(t.TempDir(), "hub.yml"))
}

func createValidConfig() *hub.Config {
	config := hub.NewDefaultConfig()
	config.Hub.ID = "test-hub"
	config.Devices = []hub.DeviceConfig{cli.CreateDeviceTemplate("living_room", "192.168.1.100")}
	return config
}

func TestLoadConfig(t *testing.T) {
	cm := setupTestConfigManager(t)

	t.Run("nonexistent config creates default", func(t *testing.T) {
		config, err := cm.LoadConfig()
		require.NoError(t, err)
		assert.NotEmpty(t, config.Hub.JWTSecret)
		assert.FileExists(t, cm.GetConfigPath())
	})

	t.Run("existing config", func(t *testing.T) {
		require.NoError(t, cm.SaveConfig(createValidConfig()))

		config, err := cm.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "test-hub", config.Hub.ID)
		require.Len(t, config.Devices, 1)
		assert.Equal(t, "living_room", config.Devices[0].ID)
	})
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	cm := setupTestConfigManager(t)

	config := createValidConfig()
	config.Devices[0].Host = ""

	err := cm.SaveConfig(config)
	assert.ErrorIs(t, err, aquos.ErrConfiguration)
	assert.NoFileExists(t, cm.GetConfigPath())
}

func TestDeviceOperations(t *testing.T) {
	cm := setupTestConfigManager(t)
	require.NoError(t, cm.SaveConfig(createValidConfig()))

	bedroom := cli.CreateDeviceTemplate("bedroom", "192.168.1.101")

	t.Run("AddDevice", func(t *testing.T) {
		require.NoError(t, cm.AddDevice(bedroom))
		assert.True(t, cm.DeviceExists("bedroom"))
	})

	t.Run("AddDevice duplicate ID", func(t *testing.T) {
		assert.ErrorContains(t, cm.AddDevice(bedroom), "already exists")
	})

	t.Run("AddDevice invalid macro", func(t *testing.T) {
		broken := cli.CreateDeviceTemplate("kitchen", "192.168.1.102")
		broken.Macros = map[string][]string{"launch-c": {"no-such-key"}}
		assert.Error(t, cm.AddDevice(broken))
		assert.False(t, cm.DeviceExists("kitchen"))
	})

	t.Run("GetDevice", func(t *testing.T) {
		device, err := cm.GetDevice("bedroom")
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.101", device.Host)
		assert.Equal(t, aquos.DefaultControlPort, device.ControlPort)
	})

	t.Run("GetDevice nonexistent", func(t *testing.T) {
		_, err := cm.GetDevice("garage")
		assert.ErrorIs(t, err, cli.ErrDeviceNotFound)
	})

	t.Run("UpdateDevice keeps ID", func(t *testing.T) {
		updated := cli.CreateDeviceTemplate("ignored", "192.168.1.150")
		require.NoError(t, cm.UpdateDevice("bedroom", updated))

		device, err := cm.GetDevice("bedroom")
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.150", device.Host)
		assert.False(t, cm.DeviceExists("ignored"))
	})

	t.Run("UpdateDevice nonexistent", func(t *testing.T) {
		assert.ErrorIs(t, cm.UpdateDevice("garage", bedroom), cli.ErrDeviceNotFound)
	})

	t.Run("ListDevices", func(t *testing.T) {
		devices, err := cm.ListDevices()
		require.NoError(t, err)
		assert.Len(t, devices, 2)
	})

	t.Run("RemoveDevice", func(t *testing.T) {
		require.NoError(t, cm.RemoveDevice("bedroom"))
		assert.False(t, cm.DeviceExists("bedroom"))
	})

	t.Run("RemoveDevice last device", func(t *testing.T) {
		assert.ErrorIs(t, cm.RemoveDevice("living_room"), aquos.ErrConfiguration)
		assert.True(t, cm.DeviceExists("living_room"))
	})

	t.Run("RemoveDevice nonexistent", func(t *testing.T) {
		assert.ErrorIs(t, cm.RemoveDevice("garage"), cli.ErrDeviceNotFound)
	})
}

func TestBackupAndRestore(t *testing.T) {
	cm := setupTestConfigManager(t)
	require.NoError(t, cm.SaveConfig(createValidConfig()))

	require.NoError(t, cm.BackupConfig())
	assert.FileExists(t, cm.GetConfigPath()+".backup")

	require.NoError(t, cm.AddDevice(cli.CreateDeviceTemplate("restore_test", "192.168.1.200")))
	require.True(t, cm.DeviceExists("restore_test"))

	require.NoError(t, cm.RestoreFromBackup())
	assert.False(t, cm.DeviceExists("restore_test"))

	t.Run("invalid backup", func(t *testing.T) {
		require.NoError(t, os.WriteFile(cm.GetConfigPath()+".backup", []byte("hub: {}\n"), 0600))
		assert.Error(t, cm.RestoreFromBackup())
		assert.True(t, cm.DeviceExists("living_room"))
	})

	t.Run("missing backup", func(t *testing.T) {
		require.NoError(t, os.Remove(cm.GetConfigPath()+".backup"))
		assert.Error(t, cm.RestoreFromBackup())
	})
}
