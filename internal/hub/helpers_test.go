package hub_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aquos/internal"
	"aquos/internal/aquos"
	"aquos/internal/hub"

	"github.com/stretchr/testify/require"
)

func testConfig() *hub.Config {
	noDelay := time.Duration(0)
	config := hub.NewDefaultConfig()
	config.Hub.ID = "test-hub"
	config.Devices[0].ID = "tv"
	config.Devices[0].Host = "192.168.1.20"
	config.Devices[0].CommandDelay = &noDelay
	config.Devices[0].SettleDelay = &noDelay
	return config
}

func testMode() *internal.FnModeOptions {
	return internal.NewModeOptions(internal.WithTest(true))
}

func newStore(t *testing.T) *hub.Store {
	t.Helper()
	store, err := hub.NewStore(filepath.Join(t.TempDir(), "aquos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newManager returns a manager whose televisions are simulated and set up.
func newManager(t *testing.T, config *hub.Config, store *hub.Store) *hub.DeviceManager {
	t.Helper()
	dm := hub.NewDeviceManager(config, store)
	require.NoError(t, dm.Initialize(context.Background(), testMode()))
	t.Cleanup(dm.Shutdown)
	return dm
}

type published struct {
	deviceID string
	state    aquos.State
}

type recordingPublisher struct {
	states chan published
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{states: make(chan published, 16)}
}

func (p *recordingPublisher) PublishState(deviceID string, state aquos.State) error {
	p.states <- published{deviceID: deviceID, state: state}
	return nil
}

func (p *recordingPublisher) Close() {}
