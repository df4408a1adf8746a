// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"aquos/internal/aquos"
	"aquos/internal/hub"
)

var ErrDeviceNotFound = errors.New("device not found")

// ConfigManager edits the television list of a hub configuration file.
// Every change is validated as a whole before it is written.
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new config manager
func NewConfigManager(configPath string) *ConfigManager {
	return &ConfigManager{
		configPath: configPath,
	}
}

// GetConfigPath returns the managed file
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

// LoadConfig loads the hub configuration, creating a default one with a
// fresh secret when the file does not exist yet
func (cm *ConfigManager) LoadConfig() (*hub.Config, error) {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		config, err := hub.NewConfigWithSecret()
		if err != nil {
			return nil, err
		}
		if err := cm.SaveConfig(config); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	config, err := hub.LoadConfig(cm.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}

// SaveConfig validates and saves the hub configuration
func (cm *ConfigManager) SaveConfig(config *hub.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := hub.SaveConfig(config, cm.configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// AddDevice adds a television to the configuration
func (cm *ConfigManager) AddDevice(device hub.DeviceConfig) error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	if slices.ContainsFunc(config.Devices, func(d hub.DeviceConfig) bool { return d.ID == device.ID }) {
		return fmt.Errorf("device with ID '%s' already exists", device.ID)
	}

	config.Devices = append(config.Devices, device)
	return cm.SaveConfig(config)
}

// UpdateDevice replaces an existing television, keeping its ID
func (cm *ConfigManager) UpdateDevice(deviceID string, updated hub.DeviceConfig) error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(config.Devices, func(d hub.DeviceConfig) bool { return d.ID == deviceID })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	updated.ID = deviceID
	config.Devices[i] = updated
	return cm.SaveConfig(config)
}

// RemoveDevice removes a television. The last one cannot be removed
// because a hub needs at least one.
func (cm *ConfigManager) RemoveDevice(deviceID string) error {
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(config.Devices, func(d hub.DeviceConfig) bool { return d.ID == deviceID })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	config.Devices = slices.Delete(config.Devices, i, i+1)
	return cm.SaveConfig(config)
}

// GetDevice gets a specific television from the configuration
func (cm *ConfigManager) GetDevice(deviceID string) (*hub.DeviceConfig, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(config.Devices, func(d hub.DeviceConfig) bool { return d.ID == deviceID })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return &config.Devices[i], nil
}

// ListDevices returns all televisions from the configuration
func (cm *ConfigManager) ListDevices() ([]hub.DeviceConfig, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.Devices, nil
}

// DeviceExists checks if a television with the given ID is configured
func (cm *ConfigManager) DeviceExists(deviceID string) bool {
	_, err := cm.GetDevice(deviceID)
	return err == nil
}

// BackupConfig copies the configuration to a .backup file
func (cm *ConfigManager) BackupConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config for backup: %w", err)
	}
	if err := os.WriteFile(cm.configPath+".backup", data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// RestoreFromBackup replaces the configuration with its .backup copy
// after checking that the backup is itself valid
func (cm *ConfigManager) RestoreFromBackup() error {
	backupPath := cm.configPath + ".backup"
	if _, err := hub.LoadConfig(backupPath); err != nil {
		return fmt.Errorf("backup is not usable: %w", err)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}
	return nil
}

// CreateDeviceTemplate returns a television entry with stock settings
func CreateDeviceTemplate(deviceID, host string) hub.DeviceConfig {
	hdmi := aquos.MaxHDMIInputs
	return hub.DeviceConfig{
		ID:              deviceID,
		Host:            host,
		ControlPort:     aquos.DefaultControlPort,
		DescriptionPort: aquos.DefaultDescriptionPort,
		HDMIInputs:      &hdmi,
		MuteToggle:      string(aquos.MuteToggleOnMatch),
	}
}
