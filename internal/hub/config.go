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

package hub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"

	"aquos/internal/aquos"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen      = ":8081"
	DefaultDatabase    = "aquos.db"
	DefaultTopicPrefix = "aquos"
)

// Config represents the hub configuration structure
type Config struct {
	Hub     HubConfig      `yaml:"hub"`
	Devices []DeviceConfig `yaml:"devices"`
}

// HubConfig contains hub identity and service settings
type HubConfig struct {
	ID        string     `yaml:"id"`
	Listen    string     `yaml:"listen"`
	Database  string     `yaml:"database"`
	JWTSecret string     `yaml:"jwt_secret,omitempty"` // empty disables API auth
	RateLimit float64    `yaml:"rate_limit,omitempty"` // requests per second per device, 0 = off
	MQTT      MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig enables state publication when Broker is set
type MQTTConfig struct {
	Broker      string `yaml:"broker,omitempty"` // e.g. tcp://localhost:1883
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// DeviceConfig represents a single television
type DeviceConfig struct {
	ID              string              `yaml:"id"`
	Host            string              `yaml:"host"`
	ControlPort     int                 `yaml:"control_port"`
	DescriptionPort int                 `yaml:"description_port,omitempty"`
	Username        string              `yaml:"username,omitempty"`
	Password        string              `yaml:"password,omitempty"`
	Applications    []ApplicationConfig `yaml:"applications,omitempty"`
	HDMIInputs      *int                `yaml:"hdmi_inputs,omitempty"`
	MuteToggle      string              `yaml:"mute_toggle,omitempty"`
	CommandDelay    *time.Duration      `yaml:"command_delay,omitempty"`
	SettleDelay     *time.Duration      `yaml:"settle_delay,omitempty"`
	Macros          map[string][]string `yaml:"macros,omitempty"`
}

// ApplicationConfig is an app input and the macro that opens it
type ApplicationConfig struct {
	Name  string `yaml:"name"`
	Macro string `yaml:"macro"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Hub.Listen == "" {
		c.Hub.Listen = DefaultListen
	}
	if c.Hub.Database == "" {
		c.Hub.Database = DefaultDatabase
	}
	if c.Hub.MQTT.TopicPrefix == "" {
		c.Hub.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.Hub.MQTT.ClientID == "" && c.Hub.ID != "" {
		c.Hub.MQTT.ClientID = c.Hub.ID
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Hub.ID == "" {
		return fmt.Errorf("%w: hub.id is required", aquos.ErrConfiguration)
	}
	if c.Hub.RateLimit < 0 {
		return fmt.Errorf("%w: hub.rate_limit must not be negative", aquos.ErrConfiguration)
	}

	// Validate devices
	if len(c.Devices) == 0 {
		return fmt.Errorf("%w: at least one device must be configured", aquos.ErrConfiguration)
	}

	deviceIDs := make(map[string]bool)
	for i, device := range c.Devices {
		if device.ID == "" {
			return fmt.Errorf("%w: device[%d].id is required", aquos.ErrConfiguration, i)
		}
		if deviceIDs[device.ID] {
			return fmt.Errorf("%w: duplicate device ID: %s", aquos.ErrConfiguration, device.ID)
		}
		deviceIDs[device.ID] = true

		if err := device.Validate(); err != nil {
			return fmt.Errorf("device %s: %w", device.ID, err)
		}
	}

	return nil
}

// Validate checks one device entry, including its applications and macros
func (d DeviceConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("%w: host is required", aquos.ErrConfiguration)
	}
	if d.ControlPort <= 0 || d.ControlPort > 65535 {
		return fmt.Errorf("%w: control_port is required", aquos.ErrConfiguration)
	}
	if d.DescriptionPort < 0 || d.DescriptionPort > 65535 {
		return fmt.Errorf("%w: description_port out of range", aquos.ErrConfiguration)
	}

	opts, err := d.SessionOptions()
	if err != nil {
		return err
	}
	if _, err := aquos.BuildRegistry(applicationNames(opts.Applications), nil, opts.HDMIInputs); err != nil {
		return err
	}
	// Constructing a session checks macro references and the mute policy.
	if _, err := aquos.NewSession(d.Endpoint(), aquos.NewSimulator(), opts); err != nil {
		return err
	}
	return nil
}

// Endpoint returns the network address of the television
func (d DeviceConfig) Endpoint() aquos.Endpoint {
	port := d.DescriptionPort
	if port == 0 {
		port = aquos.DefaultDescriptionPort
	}
	return aquos.Endpoint{
		Host:            d.Host,
		ControlPort:     d.ControlPort,
		DescriptionPort: port,
	}
}

// SessionOptions converts the entry into session options, filling defaults
func (d DeviceConfig) SessionOptions() (aquos.Options, error) {
	opts := aquos.DefaultOptions()
	opts.Name = d.ID
	opts.Credentials = aquos.Credentials{ID: d.Username, Pass: d.Password}
	opts.MuteToggle = aquos.MuteToggle(d.MuteToggle)

	if d.HDMIInputs != nil {
		opts.HDMIInputs = *d.HDMIInputs
	}
	if d.CommandDelay != nil {
		opts.CommandDelay = *d.CommandDelay
	}
	if d.SettleDelay != nil {
		opts.SettleDelay = *d.SettleDelay
	}

	if len(d.Applications) > 0 {
		opts.Applications = make([]aquos.Application, len(d.Applications))
		for i, app := range d.Applications {
			opts.Applications[i] = aquos.Application{Name: app.Name, Macro: app.Macro}
		}
	}

	// Sorted so that errors are reported in a stable order.
	names := make([]string, 0, len(d.Macros))
	for name := range d.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		macro, err := aquos.ParseMacro(name, d.Macros[name], opts.CommandDelay)
		if err != nil {
			return aquos.Options{}, err
		}
		opts.Macros = append(opts.Macros, macro)
	}

	return opts, nil
}

func applicationNames(apps []aquos.Application) []string {
	names := make([]string, len(apps))
	for i, app := range apps {
		names[i] = app.Name
	}
	return names
}

// GetDevice returns a device configuration by ID
func (c *Config) GetDevice(id string) (*DeviceConfig, error) {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", id)
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewConfigWithSecret creates a configuration with a generated hub ID and
// JWT secret
func NewConfigWithSecret() (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	config := NewDefaultConfig()
	config.Hub.ID = "aquos-" + uuid.NewString()[:8]
	config.Hub.JWTSecret = hex.EncodeToString(secret)
	config.Hub.MQTT.ClientID = config.Hub.ID
	return config, nil
}

// NewDefaultConfig creates a default configuration template
func NewDefaultConfig() *Config {
	hdmi := aquos.MaxHDMIInputs
	commandDelay := aquos.DefaultCommandDelay
	settleDelay := aquos.DefaultSettleDelay

	return &Config{
		Hub: HubConfig{
			ID:       "aquos_hub",
			Listen:   DefaultListen,
			Database: DefaultDatabase,
			MQTT: MQTTConfig{
				TopicPrefix: DefaultTopicPrefix,
			},
		},
		Devices: []DeviceConfig{
			{
				ID:              "living_room_tv",
				Host:            "192.168.1.100",
				ControlPort:     aquos.DefaultControlPort,
				DescriptionPort: aquos.DefaultDescriptionPort,
				Applications: []ApplicationConfig{
					{Name: "Netflix", Macro: aquos.MacroLaunchA},
					{Name: "YouTube", Macro: aquos.MacroLaunchB},
				},
				HDMIInputs:   &hdmi,
				MuteToggle:   string(aquos.MuteToggleOnMatch),
				CommandDelay: &commandDelay,
				SettleDelay:  &settleDelay,
			},
		},
	}
}
