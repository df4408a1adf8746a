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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"aquos/internal"
	"aquos/internal/logger"

	"github.com/rs/zerolog"
)

const (
	healthCheckInterval = time.Minute
	shutdownTimeout     = 10 * time.Second
)

// Daemon represents the hub daemon
type Daemon struct {
	config        *Config
	configPath    string
	store         *Store
	deviceManager *DeviceManager
	publisher     Publisher
	api           *APIServer
	server        *http.Server
	logger        zerolog.Logger
	running       bool
	mutex         sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	opts          *internal.FnModeOptions
}

// NewDaemon creates a new hub daemon
func NewDaemon(configPath string, opts *internal.FnModeOptions) (*Daemon, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Hub.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	daemon := &Daemon{
		config:     config,
		configPath: configPath,
		store:      store,
		logger:     logger.For("daemon"),
		ctx:        ctx,
		cancel:     cancel,
		opts:       opts,
		publisher:  nopPublisher{},
	}
	daemon.deviceManager = NewDeviceManager(config, store)
	daemon.api = NewAPIServer(daemon.deviceManager, config.Hub)

	return daemon, nil
}

// Start initializes the televisions, serves the API and blocks until a
// shutdown signal arrives or ctx is cancelled. SIGHUP reloads the
// configuration.
func (d *Daemon) Start(ctx context.Context) error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	d.logger.Info().
		Bool("debug", d.opts.Debug).
		Bool("test_mode", d.opts.Test).
		Msg("Starting AQUOS hub daemon")

	publisher, err := NewPublisher(d.config.Hub.MQTT, d.handleMQTTAction)
	if err != nil {
		d.logger.Warn().Err(err).Msg("MQTT unavailable, state will not be published")
	} else {
		d.publisher = publisher
		d.deviceManager.SetPublisher(publisher)
	}

	if err := d.deviceManager.Initialize(d.ctx, d.opts); err != nil {
		d.Stop()
		return fmt.Errorf("failed to initialize devices: %w", err)
	}

	listener, err := net.Listen("tcp", d.config.Hub.Listen)
	if err != nil {
		d.Stop()
		return fmt.Errorf("failed to listen on %s: %w", d.config.Hub.Listen, err)
	}
	d.server = &http.Server{
		Handler:      d.api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute, // macros can take several seconds
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("API server error")
			d.cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go d.startHealthCheck()

	d.logger.Info().
		Int("device_count", d.deviceManager.GetDeviceCount()).
		Str("listen", listener.Addr().String()).
		Bool("auth", d.config.Hub.JWTSecret != "").
		Msg("Hub daemon started successfully")

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := d.ReloadConfig(d.configPath); err != nil {
					d.logger.Error().Err(err).Msg("Failed to reload configuration")
				}
				continue
			}
			d.logger.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			return d.Stop()
		case <-ctx.Done():
			d.logger.Info().Msg("Context cancelled")
			return d.Stop()
		case <-d.ctx.Done():
			return d.Stop()
		}
	}
}

// Stop stops the hub daemon gracefully
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	if !d.running {
		d.mutex.Unlock()
		return nil
	}
	d.running = false
	d.mutex.Unlock()

	d.logger.Info().Msg("Stopping hub daemon")
	d.cancel()

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Error stopping API server")
		}
	}

	d.publisher.Close()
	d.deviceManager.Shutdown()

	if err := d.store.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Error closing database")
	}

	d.logger.Info().Msg("Hub daemon stopped")
	return nil
}

func (d *Daemon) handleMQTTAction(deviceID string, payload []byte) {
	response, err := d.deviceManager.ProcessDeviceAction(d.ctx, deviceID, payload)
	if err != nil {
		d.logger.Warn().Str("device_id", deviceID).Err(err).Msg("MQTT action rejected")
		return
	}
	if !response.Success {
		d.logger.Warn().
			Str("device_id", deviceID).
			Str("code", string(response.Code)).
			Str("error", response.Error).
			Msg("MQTT action failed")
	}
}

// startHealthCheck periodically retries setup of televisions that were
// unreachable
func (d *Daemon) startHealthCheck() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.performHealthCheck()
		case <-d.ctx.Done():
			d.logger.Debug().Msg("Health check routine stopping")
			return
		}
	}
}

func (d *Daemon) performHealthCheck() {
	infos := d.deviceManager.GetAllDeviceInfo()
	ready := 0
	for id, info := range infos {
		if info.Ready {
			ready++
			continue
		}
		if err := d.deviceManager.Rediscover(d.ctx, id); err == nil {
			ready++
		}
	}

	d.logger.Info().
		Int("device_count", len(infos)).
		Int("ready_count", ready).
		Msg("Health check completed")
}

// IsRunning returns whether the daemon is currently running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// ReloadConfig reloads the configuration and reinitializes the devices
func (d *Daemon) ReloadConfig(configPath string) error {
	d.logger.Info().
		Str("config_path", configPath).
		Msg("Reloading configuration")

	newConfig, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	d.config.Devices = newConfig.Devices
	if err := d.deviceManager.Reload(d.ctx, d.config, d.opts); err != nil {
		return fmt.Errorf("failed to reload device manager: %w", err)
	}

	d.logger.Info().Msg("Configuration reloaded (hub settings require a restart)")
	return nil
}
