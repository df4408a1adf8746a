package aquos_test

import (
	"errors"
	"fmt"
	"testing"

	"aquos/internal/aquos"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChannels(n int) []aquos.Channel {
	channels := make([]aquos.Channel, n)
	for i := range channels {
		channels[i] = aquos.Channel{
			RemoteControlNumber: fmt.Sprint(i + 1),
			Name:                fmt.Sprintf("Channel %d", i+1),
			ChannelNumber:       fmt.Sprintf("%03d", (i+1)*10+1),
			Skip:                "0",
			Command:             aquos.RemoteCode(fmt.Sprintf("DTVD%04d", (i+1)*10+1)),
		}
	}
	return channels
}

func TestBuildRegistry_Ordering(t *testing.T) {
	t.Run("assigns applications, channels, then HDMI inputs", func(t *testing.T) {
		channels := sampleChannels(2)
		registry, err := aquos.BuildRegistry([]string{"Netflix", "YouTube"}, channels, 2)
		require.NoError(t, err)
		require.Equal(t, 6, registry.Len())

		want := []aquos.ActionDescriptor{
			{Kind: aquos.KindApplication, Application: "Netflix"},
			{Kind: aquos.KindApplication, Application: "YouTube"},
			{Kind: aquos.KindTuner, Channel: channels[0]},
			{Kind: aquos.KindTuner, Channel: channels[1]},
			{Kind: aquos.KindHDMI, HDMISlot: 1},
			{Kind: aquos.KindHDMI, HDMISlot: 2},
		}
		for id, expected := range want {
			got, err := registry.Resolve(id)
			require.NoError(t, err)
			assert.Equal(t, expected, got, "identifier %d", id)
		}

		_, err = registry.Resolve(6)
		assert.True(t, errors.Is(err, aquos.ErrUnknownIdentifier))
	})

	t.Run("round trips for every shape", func(t *testing.T) {
		for apps := 0; apps <= 3; apps++ {
			for chans := 0; chans <= 4; chans++ {
				for hdmi := 0; hdmi <= aquos.MaxHDMIInputs; hdmi++ {
					names := make([]string, apps)
					for i := range names {
						names[i] = fmt.Sprintf("App%d", i)
					}
					channels := sampleChannels(chans)

					registry, err := aquos.BuildRegistry(names, channels, hdmi)
					require.NoError(t, err)
					require.Equal(t, apps+chans+hdmi, registry.Len())

					for id := 0; id < registry.Len(); id++ {
						desc, err := registry.Resolve(id)
						require.NoError(t, err)
						switch {
						case id < apps:
							assert.Equal(t, aquos.ActionDescriptor{Kind: aquos.KindApplication, Application: names[id]}, desc)
						case id < apps+chans:
							assert.Equal(t, aquos.ActionDescriptor{Kind: aquos.KindTuner, Channel: channels[id-apps]}, desc)
						default:
							assert.Equal(t, aquos.ActionDescriptor{Kind: aquos.KindHDMI, HDMISlot: id - apps - chans + 1}, desc)
						}
					}
				}
			}
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		channels := sampleChannels(5)
		first, err := aquos.BuildRegistry([]string{"Netflix", "YouTube"}, channels, 4)
		require.NoError(t, err)
		second, err := aquos.BuildRegistry([]string{"Netflix", "YouTube"}, sampleChannels(5), 4)
		require.NoError(t, err)

		if diff := cmp.Diff(first.Entries(), second.Entries()); diff != "" {
			t.Errorf("registries differ (-first +second):\n%s", diff)
		}
	})
}

func TestRegistry_Resolve_OutOfRange(t *testing.T) {
	registry, err := aquos.BuildRegistry([]string{"Netflix"}, sampleChannels(1), 1)
	require.NoError(t, err)

	for _, id := range []int{-1, -100, 3, 4, aquos.NoIdentifier} {
		t.Run(fmt.Sprint(id), func(t *testing.T) {
			desc, err := registry.Resolve(id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, aquos.ErrUnknownIdentifier))
			assert.Equal(t, aquos.ActionDescriptor{}, desc)
		})
	}
}

func TestBuildRegistry_Configuration(t *testing.T) {
	tests := []struct {
		name string
		apps []string
		hdmi int
	}{
		{"duplicate application", []string{"Netflix", "Netflix"}, 2},
		{"empty application", []string{"Netflix", " "}, 2},
		{"negative hdmi", nil, -1},
		{"too many hdmi", nil, aquos.MaxHDMIInputs + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := aquos.BuildRegistry(tt.apps, nil, tt.hdmi)
			require.Error(t, err)
			assert.Nil(t, registry)
			assert.True(t, errors.Is(err, aquos.ErrConfiguration))
		})
	}
}

func TestActionDescriptor_Label(t *testing.T) {
	registry, err := aquos.BuildRegistry([]string{"Netflix"}, []aquos.Channel{{Name: "ＮＨＫ", ChannelNumber: "011"}}, 1)
	require.NoError(t, err)

	labels := []string{}
	for _, desc := range registry.Entries() {
		labels = append(labels, desc.Label())
	}
	assert.Equal(t, []string{"Netflix App", "011: NHK", "HDMI Input 1"}, labels)
}

func TestRegistry_EntriesIsACopy(t *testing.T) {
	registry, err := aquos.BuildRegistry([]string{"Netflix"}, nil, 0)
	require.NoError(t, err)

	entries := registry.Entries()
	entries[0].Application = "changed"

	desc, err := registry.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", desc.Application)
}
