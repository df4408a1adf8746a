package cli

import (
	"context"
	"testing"

	"aquos/internal"
	"aquos/internal/aquos"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"host and port field", "192.168.1.20", "10002", "192.168.1.20", 10002, false},
		{"port in host wins", "192.168.1.20:10003", "10002", "192.168.1.20", 10003, false},
		{"surrounding spaces", " tv.local ", " 10002 ", "tv.local", 10002, false},
		{"empty host", "", "10002", "", 0, true},
		{"bad port", "192.168.1.20", "remote", "", 0, true},
		{"port out of range", "192.168.1.20", "70000", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, err := parseEndpoint(tt.host, tt.port)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, endpoint.Host)
			assert.Equal(t, tt.wantPort, endpoint.ControlPort)
			assert.Equal(t, aquos.DefaultDescriptionPort, endpoint.DescriptionPort)
		})
	}
}

func TestSetupConnectsInTestMode(t *testing.T) {
	m := NewSetupModelWithFlags(false, true)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("192.168.1.20")})
	m.focusedField = setupFieldConnect

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.connecting)

	m, _ = m.Update(cmd())
	require.True(t, m.IsConnected(), m.connectionError)
	assert.True(t, m.Remote().Session().Ready())
}

func TestRemoteActionsRunInBackground(t *testing.T) {
	remote, err := Connect(context.Background(),
		aquos.Endpoint{Host: "192.168.1.20", ControlPort: aquos.DefaultControlPort, DescriptionPort: aquos.DefaultDescriptionPort},
		aquos.Credentials{}, internal.NewModeOptions(internal.WithTest(true)))
	require.NoError(t, err)

	m := NewRemoteModelWithFlags(remote, false, true)
	require.Len(t, m.inputs, 11)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.selectedInput)

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Nil(t, cmd)
	assert.Equal(t, 10, m.selectedInput)

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	require.NotNil(t, cmd)
	assert.Equal(t, 1, m.pending)

	m, _ = m.Update(cmd())
	assert.Equal(t, 0, m.pending)
	require.NotNil(t, m.lastResponse)
	assert.True(t, m.lastResponse.Success, m.lastResponse.Error)
	assert.Equal(t, 10, remote.Session().State().ActiveIdentifier)
	require.Len(t, m.actionHistory, 1)
	assert.Contains(t, m.View(), "HDMI Input 6")
}
