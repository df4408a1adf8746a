package aquos_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"aquos/internal/aquos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSession_Setup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	t.Run("discovers identity and builds registry", func(t *testing.T) {
		session, _ := newReadySession(t, testOptions())

		assert.True(t, session.Ready())
		identity, ok := session.Identity()
		require.True(t, ok)
		assert.Equal(t, "AQUOS Simulator", identity.FriendlyName)
		assert.Len(t, session.Channels(), 3)

		// 2 apps + 3 channels + 6 HDMI
		assert.Equal(t, 11, session.Registry().Len())
		assert.Equal(t, aquos.State{Power: aquos.PowerStateOff, Mute: aquos.MuteStateOff, ActiveIdentifier: aquos.NoIdentifier}, session.State())
	})

	t.Run("description failure leaves session uninitialized", func(t *testing.T) {
		transport := newRecordingTransport()
		transport.getErr = &aquos.TransportError{Op: http.MethodGet, URL: "http://tv/ssdp/device-desc.xml", Status: http.StatusNotFound}
		session := newSession(t, transport, testOptions())

		err := session.Setup(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, aquos.ErrDiscovery))
		assert.True(t, errors.Is(err, aquos.ErrTransport))

		var de *aquos.DiscoveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, aquos.StageDescription, de.Stage)

		assert.False(t, session.Ready())
		assert.ErrorIs(t, session.SetPower(context.Background(), true), aquos.ErrUninitialized)
		assert.ErrorIs(t, session.SelectIdentifier(context.Background(), 0), aquos.ErrUninitialized)
		assert.ErrorIs(t, session.RunMacro(context.Background(), aquos.MacroLaunchA), aquos.ErrUninitialized)
		assert.Empty(t, transport.controlSpans())
		assert.Equal(t, aquos.PowerStateOff, session.State().Power)
	})

	t.Run("channel query failure fails discovery", func(t *testing.T) {
		transport := newRecordingTransport()
		transport.statusErr = &aquos.TransportError{Op: http.MethodPost, URL: "http://tv/control/X_IPcontrol", Status: http.StatusInternalServerError}
		session := newSession(t, transport, testOptions())

		err := session.Setup(context.Background())
		var de *aquos.DiscoveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, aquos.StageChannels, de.Stage)
		assert.False(t, session.Ready())
	})

	t.Run("duplicate applications fail with configuration error", func(t *testing.T) {
		opts := testOptions()
		opts.Applications = []aquos.Application{
			{Name: "Netflix", Macro: aquos.MacroLaunchA},
			{Name: "Netflix", Macro: aquos.MacroLaunchB},
		}
		session := newSession(t, newRecordingTransport(), opts)

		err := session.Setup(context.Background())
		assert.True(t, errors.Is(err, aquos.ErrConfiguration))
		assert.False(t, session.Ready())
	})

	t.Run("rebuilding yields the same assignment", func(t *testing.T) {
		session, _ := newReadySession(t, testOptions())
		first := session.Registry().Entries()

		require.NoError(t, session.Setup(context.Background()))
		assert.Equal(t, first, session.Registry().Entries())
	})
}

func TestSession_StandaloneDiscovery(t *testing.T) {
	transport := newRecordingTransport()
	session := newSession(t, transport, testOptions())

	identity, err := session.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sharp Corporation", identity.Manufacturer)

	channels, err := session.EnumerateChannels(context.Background())
	require.NoError(t, err)
	assert.Len(t, channels, 3)

	// Discovery alone does not build the registry.
	assert.False(t, session.Ready())
}

func TestNewSession_Validation(t *testing.T) {
	endpoint := aquos.Endpoint{Host: "tv", ControlPort: 10002, DescriptionPort: 8008}

	_, err := aquos.NewSession(aquos.Endpoint{}, aquos.NewSimulator(), testOptions())
	assert.ErrorIs(t, err, aquos.ErrConfiguration)

	_, err = aquos.NewSession(endpoint, nil, testOptions())
	assert.ErrorIs(t, err, aquos.ErrConfiguration)

	opts := testOptions()
	opts.MuteToggle = "sometimes"
	_, err = aquos.NewSession(endpoint, aquos.NewSimulator(), opts)
	assert.ErrorIs(t, err, aquos.ErrConfiguration)

	opts = testOptions()
	opts.Applications = []aquos.Application{{Name: "Hulu", Macro: "launch-hulu"}}
	_, err = aquos.NewSession(endpoint, aquos.NewSimulator(), opts)
	assert.ErrorIs(t, err, aquos.ErrConfiguration)

	opts.Macros = []aquos.Macro{{Name: "launch-hulu", Steps: []aquos.Step{{Key: aquos.Home}}}}
	session, err := aquos.NewSession(endpoint, aquos.NewSimulator(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{aquos.MacroLaunchA, aquos.MacroLaunchB, "launch-hulu"}, session.MacroNames())
	assert.Equal(t, "test-tv", session.Name())

	opts = testOptions()
	opts.Name = ""
	session, err = aquos.NewSession(endpoint, aquos.NewSimulator(), opts)
	require.NoError(t, err)
	assert.Equal(t, "tv:10002", session.Name())
}

func TestSession_DispatchSerialization(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	session, transport := newReadySession(t, testOptions())
	transport.latency = 2 * time.Millisecond

	const delay = 15 * time.Millisecond
	const callers = 6

	type result struct {
		entry, exit time.Time
	}
	results := make([]result, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := time.Now()
			err := session.Dispatch(context.Background(), aquos.Command(aquos.VolumeUp), delay)
			results[i] = result{entry: entry, exit: time.Now()}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.False(t, transport.overlapped, "two POSTs were in flight at once")

	spans := transport.controlSpans()
	require.Len(t, spans, callers)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	for i := 1; i < len(spans); i++ {
		assert.GreaterOrEqual(t, spans[i].start.Sub(spans[i-1].end), delay,
			"call %d started before the previous pause elapsed", i)
	}
	for i, r := range results {
		assert.GreaterOrEqual(t, r.exit.Sub(r.entry), delay, "call %d returned early", i)
	}
}

func TestSession_DispatchWaitIsCancellable(t *testing.T) {
	session, _ := newReadySession(t, testOptions())

	done := make(chan error, 1)
	go func() {
		done <- session.Dispatch(context.Background(), aquos.Command(aquos.Home), 100*time.Millisecond)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := session.Dispatch(ctx, aquos.Command(aquos.Home), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, <-done)
}

func TestSession_SetPower(t *testing.T) {
	t.Run("failure leaves state unchanged", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())
		transport.FailCommand(aquos.PowerOn, 1)

		err := session.SetPower(context.Background(), true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, aquos.ErrTransport))
		assert.Equal(t, aquos.PowerStateOff, session.State().Power)
	})

	t.Run("success updates state", func(t *testing.T) {
		var changes []aquos.State
		opts := testOptions()
		opts.OnStateChange = func(s aquos.State) { changes = append(changes, s) }
		session, transport := newReadySession(t, opts)

		require.NoError(t, session.SetPower(context.Background(), true))
		assert.Equal(t, aquos.PowerStateOn, session.State().Power)
		require.NoError(t, session.SetPower(context.Background(), false))
		assert.Equal(t, aquos.PowerStateOff, session.State().Power)

		assert.Equal(t, []aquos.RemoteCode{aquos.PowerOn, aquos.PowerOff}, transport.Commands())
		require.Len(t, changes, 2)
		assert.Equal(t, aquos.PowerStateOn, changes[0].Power)
	})
}

func TestSession_StateChangesDeliveredInOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		last     aquos.State
		received int
	)
	opts := testOptions()
	opts.OnStateChange = func(s aquos.State) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = s
		received++
		mu.Unlock()
	}
	session, _ := newReadySession(t, opts)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, session.SetActiveIdentifier(id))
		}(i % 2)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, received)
	assert.Equal(t, session.State(), last)
}

func TestSession_SetMute(t *testing.T) {
	t.Run("on-match sends only when the request equals the stored state", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		require.NoError(t, session.SetMute(context.Background(), true))
		assert.Empty(t, transport.Commands())
		assert.Equal(t, aquos.MuteStateOff, session.State().Mute)

		require.NoError(t, session.SetMute(context.Background(), false))
		assert.Equal(t, []aquos.RemoteCode{aquos.Mute}, transport.Commands())
		assert.Equal(t, aquos.MuteStateOff, session.State().Mute)
	})

	t.Run("on-change sends when the state differs", func(t *testing.T) {
		opts := testOptions()
		opts.MuteToggle = aquos.MuteToggleOnChange
		session, transport := newReadySession(t, opts)

		require.NoError(t, session.SetMute(context.Background(), false))
		assert.Empty(t, transport.Commands())

		require.NoError(t, session.SetMute(context.Background(), true))
		assert.Equal(t, []aquos.RemoteCode{aquos.Mute}, transport.Commands())
		assert.Equal(t, aquos.MuteStateOn, session.State().Mute)
	})

	t.Run("failed toggle keeps state", func(t *testing.T) {
		opts := testOptions()
		opts.MuteToggle = aquos.MuteToggleOnChange
		session, transport := newReadySession(t, opts)
		transport.FailCommand(aquos.Mute, 1)

		require.Error(t, session.SetMute(context.Background(), true))
		assert.Equal(t, aquos.MuteStateOff, session.State().Mute)
	})

	t.Run("toggle always sends and flips", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		require.NoError(t, session.ToggleMute(context.Background()))
		assert.Equal(t, aquos.MuteStateOn, session.State().Mute)
		require.NoError(t, session.ToggleMute(context.Background()))
		assert.Equal(t, aquos.MuteStateOff, session.State().Mute)
		assert.Len(t, transport.Commands(), 2)
	})
}

func TestSession_NamedCommands(t *testing.T) {
	session, transport := newReadySession(t, testOptions())
	ctx := context.Background()

	require.NoError(t, session.VolumeUp(ctx))
	require.NoError(t, session.VolumeDown(ctx))
	require.NoError(t, session.ChannelUp(ctx))
	require.NoError(t, session.ChannelDown(ctx))
	require.NoError(t, session.Up(ctx))
	require.NoError(t, session.Down(ctx))
	require.NoError(t, session.Left(ctx))
	require.NoError(t, session.Right(ctx))
	require.NoError(t, session.Select(ctx))
	require.NoError(t, session.Back(ctx))
	require.NoError(t, session.Exit(ctx))
	require.NoError(t, session.Home(ctx))
	require.NoError(t, session.SendNumber(ctx, 1))
	require.NoError(t, session.SendNumber(ctx, 12))
	require.NoError(t, session.SetHDMIInput(ctx, 3))
	require.NoError(t, session.SetTunerInput(ctx))

	assert.Equal(t, []aquos.RemoteCode{
		"IRCO0114", "IRCO0115", "IRCO0111", "IRCO0112",
		"IRCO0157", "IRCO0120", "IRCO01D7", "IRCO01D8",
		"IRCO0152", "IRCO01E4", "IRCO01F5", "IRCO02BB",
		"IRCO025E", "IRCO0269", "IDIN0013", "IDIN0000",
	}, transport.Commands())

	assert.Error(t, session.SendNumber(ctx, 0))
	assert.Error(t, session.SetHDMIInput(ctx, 7))
	assert.Len(t, transport.Commands(), 16)
}

func TestSession_SelectIdentifier(t *testing.T) {
	ctx := context.Background()

	t.Run("application runs its macro", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		require.NoError(t, session.SelectIdentifier(ctx, 1))
		assert.Equal(t, []aquos.RemoteCode{
			aquos.Home, aquos.Home, aquos.Right, aquos.Right, aquos.Right, aquos.Right, aquos.Select,
		}, transport.Commands())
		assert.Equal(t, 1, session.State().ActiveIdentifier)
	})

	t.Run("channel sends its own command", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		require.NoError(t, session.SelectIdentifier(ctx, 3))
		assert.Equal(t, []aquos.RemoteCode{"DTVD0021"}, transport.Commands())
		assert.Equal(t, 3, session.State().ActiveIdentifier)
	})

	t.Run("hdmi switches input", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		require.NoError(t, session.SelectIdentifier(ctx, 6))
		assert.Equal(t, []aquos.RemoteCode{"IDIN0012"}, transport.Commands())
	})

	t.Run("unknown identifier sends nothing", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())

		for _, id := range []int{-1, 11, aquos.NoIdentifier} {
			err := session.SelectIdentifier(ctx, id)
			assert.ErrorIs(t, err, aquos.ErrUnknownIdentifier)
		}
		assert.Empty(t, transport.Commands())
		assert.Equal(t, aquos.NoIdentifier, session.State().ActiveIdentifier)
	})

	t.Run("failure keeps previous identifier", func(t *testing.T) {
		session, transport := newReadySession(t, testOptions())
		require.NoError(t, session.SelectIdentifier(ctx, 2))
		transport.FailCommand("IDIN0011", 1)

		require.Error(t, session.SelectIdentifier(ctx, 5))
		assert.Equal(t, 2, session.State().ActiveIdentifier)
	})
}

func TestSession_SetActiveIdentifier(t *testing.T) {
	session, transport := newReadySession(t, testOptions())

	require.NoError(t, session.SetActiveIdentifier(4))
	assert.Equal(t, 4, session.State().ActiveIdentifier)
	require.NoError(t, session.SetActiveIdentifier(aquos.NoIdentifier))
	assert.Equal(t, aquos.NoIdentifier, session.State().ActiveIdentifier)

	assert.ErrorIs(t, session.SetActiveIdentifier(42), aquos.ErrUnknownIdentifier)
	assert.Empty(t, transport.Commands())
}
