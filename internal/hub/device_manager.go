package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"aquos/internal"
	"aquos/internal/aquos"
	"aquos/internal/device"
	"aquos/internal/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrDeviceNotFound is returned for an unknown device ID.
var ErrDeviceNotFound = errors.New("device not found")

const requestTimeout = 10 * time.Second

// DeviceManager manages the lifecycle and access to devices
type DeviceManager struct {
	devices    map[string]*aquos.Remote
	config     *Config
	mutex      sync.RWMutex
	logger     zerolog.Logger
	nonceCache *NonceCache
	store      *Store
	publisher  Publisher
}

// NewDeviceManager creates a new device manager. store may be nil.
func NewDeviceManager(config *Config, store *Store) *DeviceManager {
	return &DeviceManager{
		devices:    make(map[string]*aquos.Remote),
		config:     config,
		logger:     logger.For("device_manager"),
		nonceCache: NewNonceCache(DefaultNonceCacheSize, DefaultNonceTTL),
		store:      store,
		publisher:  nopPublisher{},
	}
}

// SetPublisher sets where state changes are published.
func (dm *DeviceManager) SetPublisher(p Publisher) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	dm.publisher = p
}

// Initialize creates a session per configured television and runs their
// setup in parallel. A television that cannot be reached is kept and
// answers as uninitialized until Rediscover succeeds. Only configuration
// errors are returned.
func (dm *DeviceManager) Initialize(ctx context.Context, opts *internal.FnModeOptions) error {
	dm.logger.Info().
		Int("device_count", len(dm.config.Devices)).
		Msg("Initializing devices")

	remotes := make(map[string]*aquos.Remote, len(dm.config.Devices))
	for _, deviceConfig := range dm.config.Devices {
		remote, err := dm.createDevice(deviceConfig, opts)
		if err != nil {
			dm.logger.Error().
				Str("device_id", deviceConfig.ID).
				Err(err).
				Msg("Failed to create device")
			return fmt.Errorf("failed to create device %s: %w", deviceConfig.ID, err)
		}
		remotes[deviceConfig.ID] = remote
	}

	dm.mutex.Lock()
	dm.devices = remotes
	dm.mutex.Unlock()

	var g errgroup.Group
	for id, remote := range remotes {
		id, remote := id, remote
		g.Go(func() error {
			dm.setupDevice(ctx, id, remote.Session())
			return nil
		})
	}
	g.Wait()

	dm.logger.Info().
		Int("initialized_count", len(remotes)).
		Msg("All devices initialized")

	return nil
}

// createDevice creates a remote for one television
func (dm *DeviceManager) createDevice(config DeviceConfig, opts *internal.FnModeOptions) (*aquos.Remote, error) {
	sessionOpts, err := config.SessionOptions()
	if err != nil {
		return nil, err
	}

	deviceID := config.ID
	sessionOpts.OnStateChange = func(state aquos.State) {
		dm.stateChanged(deviceID, state)
	}

	session, err := aquos.NewSession(config.Endpoint(), aquos.NewTransport(opts, requestTimeout), sessionOpts)
	if err != nil {
		return nil, err
	}
	return aquos.NewRemote(session, opts), nil
}

func (dm *DeviceManager) setupDevice(ctx context.Context, id string, session *aquos.Session) error {
	if err := session.Setup(ctx); err != nil {
		dm.logger.Warn().
			Str("device_id", id).
			Err(err).
			Msg("Device setup failed, it stays uninitialized")
		return err
	}

	dm.logger.Info().
		Str("device_id", id).
		Str("device_address", session.Endpoint().String()).
		Msg("Device initialized successfully")

	dm.restoreState(ctx, id, session)
	return nil
}

// restoreState re-applies the persisted active identifier without sending
// anything to the television.
func (dm *DeviceManager) restoreState(ctx context.Context, id string, session *aquos.Session) {
	if dm.store == nil {
		return
	}

	state, found, err := dm.store.LoadState(ctx, id)
	if err != nil {
		dm.logger.Error().Str("device_id", id).Err(err).Msg("Failed to load stored state")
		return
	}
	if !found || state.ActiveIdentifier == aquos.NoIdentifier {
		return
	}

	if err := session.SetActiveIdentifier(state.ActiveIdentifier); err != nil {
		dm.logger.Warn().
			Str("device_id", id).
			Int("identifier", state.ActiveIdentifier).
			Err(err).
			Msg("Stored identifier no longer valid")
	}
}

func (dm *DeviceManager) stateChanged(id string, state aquos.State) {
	if dm.store != nil {
		if err := dm.store.SaveState(context.Background(), id, state); err != nil {
			dm.logger.Error().Str("device_id", id).Err(err).Msg("Failed to persist state")
		}
	}

	dm.mutex.RLock()
	publisher := dm.publisher
	dm.mutex.RUnlock()
	if err := publisher.PublishState(id, state); err != nil {
		dm.logger.Warn().Str("device_id", id).Err(err).Msg("Failed to publish state")
	}
}

// Rediscover runs setup again for one television
func (dm *DeviceManager) Rediscover(ctx context.Context, id string) error {
	remote, err := dm.GetDevice(id)
	if err != nil {
		return err
	}
	return dm.setupDevice(ctx, id, remote.Session())
}

// GetDevice returns a device by ID
func (dm *DeviceManager) GetDevice(id string) (*aquos.Remote, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	remote, exists := dm.devices[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	return remote, nil
}

// DeviceIDs returns the managed device IDs in sorted order
func (dm *DeviceManager) DeviceIDs() []string {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	ids := make([]string, 0, len(dm.devices))
	for id := range dm.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetDeviceInfo returns device information for a specific device
func (dm *DeviceManager) GetDeviceInfo(id string) (*device.DeviceInfo, error) {
	remote, err := dm.GetDevice(id)
	if err != nil {
		return nil, err
	}

	info := remote.GetDeviceInfo()
	return &info, nil
}

// GetAllDeviceInfo returns information for all devices
func (dm *DeviceManager) GetAllDeviceInfo() map[string]device.DeviceInfo {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	deviceInfos := make(map[string]device.DeviceInfo, len(dm.devices))
	for id, remote := range dm.devices {
		deviceInfos[id] = remote.GetDeviceInfo()
	}

	return deviceInfos
}

// ProcessDeviceAction processes an action for a specific device
func (dm *DeviceManager) ProcessDeviceAction(ctx context.Context, deviceID string, actionJSON []byte) (*device.ActionResponse, error) {
	return dm.process(ctx, deviceID, "", actionJSON)
}

// ProcessDeviceActionWithNonce processes an action with nonce-based
// deduplication. A repeated nonce returns the first response unchanged.
func (dm *DeviceManager) ProcessDeviceActionWithNonce(ctx context.Context, deviceID, nonce string, actionJSON []byte) (*device.ActionResponse, error) {
	if nonce == "" {
		return dm.process(ctx, deviceID, "", actionJSON)
	}

	if !ValidateNonce(nonce) {
		dm.logger.Warn().
			Str("device_id", deviceID).
			Str("nonce", nonce).
			Msg("Invalid nonce format")
		return device.Failure(device.CodeInvalidRequest, "invalid nonce format"), nil
	}

	if cachedResponse, found := dm.nonceCache.CheckNonce(deviceID, nonce); found {
		dm.logger.Info().
			Str("device_id", deviceID).
			Str("nonce", nonce).
			Msg("Returning cached response for duplicate nonce")
		return cachedResponse, nil
	}

	response, err := dm.process(ctx, deviceID, nonce, actionJSON)
	if err != nil {
		return response, err
	}

	dm.nonceCache.StoreResponse(deviceID, nonce, response)
	return response, nil
}

func (dm *DeviceManager) process(ctx context.Context, deviceID, nonce string, actionJSON []byte) (*device.ActionResponse, error) {
	remote, err := dm.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}

	dm.logger.Debug().
		Str("device_id", deviceID).
		RawJSON("action", actionJSON).
		Msg("Processing device action")

	response, err := remote.Process(ctx, actionJSON)
	if err != nil {
		dm.logger.Error().
			Str("device_id", deviceID).
			Err(err).
			Msg("Device action processing failed")
		return nil, fmt.Errorf("action processing failed: %w", err)
	}

	dm.logger.Info().
		Str("device_id", deviceID).
		Bool("success", response.Success).
		Str("code", string(response.Code)).
		Msg("Device action processed")

	dm.logAction(ctx, deviceID, nonce, actionJSON, response)
	return response, nil
}

func (dm *DeviceManager) logAction(ctx context.Context, deviceID, nonce string, actionJSON []byte, response *device.ActionResponse) {
	if dm.store == nil {
		return
	}

	record := ActionRecord{
		DeviceID: deviceID,
		Nonce:    nonce,
		Success:  response.Success,
		Code:     string(response.Code),
		Error:    response.Error,
	}
	var request device.ActionRequest
	if err := json.Unmarshal(actionJSON, &request); err == nil {
		record.Type = string(request.Type)
		record.Action = request.Action
	}

	if err := dm.store.LogAction(context.WithoutCancel(ctx), record); err != nil {
		dm.logger.Error().Str("device_id", deviceID).Err(err).Msg("Failed to log action")
	}
}

// RecentActions returns the action log of a device
func (dm *DeviceManager) RecentActions(ctx context.Context, deviceID string, limit int) ([]ActionRecord, error) {
	if _, err := dm.GetDevice(deviceID); err != nil {
		return nil, err
	}
	if dm.store == nil {
		return nil, nil
	}
	return dm.store.RecentActions(ctx, deviceID, limit)
}

// Shutdown gracefully shuts down all devices
func (dm *DeviceManager) Shutdown() {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.logger.Info().
		Int("device_count", len(dm.devices)).
		Msg("Shutting down device manager")

	if dm.nonceCache != nil {
		dm.nonceCache.Shutdown()
	}
	dm.devices = make(map[string]*aquos.Remote)

	dm.logger.Info().Msg("Device manager shutdown complete")
}

// Reload reloads devices from the configuration
func (dm *DeviceManager) Reload(ctx context.Context, newConfig *Config, opts *internal.FnModeOptions) error {
	dm.logger.Info().Msg("Reloading device manager with new configuration")

	dm.Shutdown()
	dm.config = newConfig
	return dm.Initialize(ctx, opts)
}

// GetDeviceCount returns the number of managed devices
func (dm *DeviceManager) GetDeviceCount() int {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return len(dm.devices)
}

// GetNonceStats returns nonce cache statistics
func (dm *DeviceManager) GetNonceStats() map[string]interface{} {
	return dm.nonceCache.GetStats()
}

// ClearDeviceNonces clears all cached nonces for a specific device
func (dm *DeviceManager) ClearDeviceNonces(deviceID string) {
	dm.nonceCache.ClearDevice(deviceID)
	dm.logger.Info().
		Str("device_id", deviceID).
		Msg("Cleared device nonce cache")
}
