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
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"aquos/internal"
	"aquos/internal/aquos"

	tea "github.com/charmbracelet/bubbletea"
)

const connectTimeout = 15 * time.Second

// Setup screen input fields
type setupField int

const (
	setupFieldHost setupField = iota
	setupFieldPort
	setupFieldUser
	setupFieldPassword
	setupFieldConnect
	setupFieldCount
)

var setupLabels = map[setupField]string{
	setupFieldHost:     "Host Address (IP or IP:Port):",
	setupFieldPort:     "Control Port:",
	setupFieldUser:     "Login ID (optional):",
	setupFieldPassword: "Password (optional):",
}

// connectedMsg reports the outcome of a connection attempt
type connectedMsg struct {
	remote *aquos.Remote
	err    error
}

// SetupModel handles the device setup screen
type SetupModel struct {
	focusedField setupField

	values  map[setupField]string
	cursors map[setupField]int

	connecting      bool
	connectionError string

	remote *aquos.Remote

	debugMode bool
	testMode  bool
}

// NewSetupModelWithFlags creates a new setup screen model with flags
func NewSetupModelWithFlags(debug, test bool) SetupModel {
	port := strconv.Itoa(aquos.DefaultControlPort)
	return SetupModel{
		focusedField: setupFieldHost,
		values:       map[setupField]string{setupFieldPort: port},
		cursors:      map[setupField]int{setupFieldPort: len(port)},
		debugMode:    debug,
		testMode:     test,
	}
}

// IsConnected reports whether a session is ready
func (m SetupModel) IsConnected() bool {
	return m.remote != nil
}

// Remote returns the connected remote
func (m SetupModel) Remote() *aquos.Remote {
	return m.remote
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.connecting = false
		if msg.err != nil {
			m.connectionError = msg.err.Error()
			return m, nil
		}
		m.connectionError = ""
		m.remote = msg.remote
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "down":
			m.focusedField = (m.focusedField + 1) % setupFieldCount
		case "shift+tab", "up":
			m.focusedField = (m.focusedField + setupFieldCount - 1) % setupFieldCount
		case "enter":
			if m.focusedField == setupFieldConnect {
				return m.handleConnect()
			}
			m.focusedField++
		case "left":
			m.moveCursor(-1)
		case "right":
			m.moveCursor(1)
		case "home":
			m.cursors[m.focusedField] = 0
		case "end":
			m.cursors[m.focusedField] = len(m.values[m.focusedField])
		case "backspace":
			if pos := m.cursors[m.focusedField]; pos > 0 {
				m.values[m.focusedField] = deleteCharAt(m.values[m.focusedField], pos-1)
				m.cursors[m.focusedField] = pos - 1
			}
		case "delete":
			m.values[m.focusedField] = deleteCharAt(m.values[m.focusedField], m.cursors[m.focusedField])
		default:
			if msg.Type == tea.KeyRunes && m.focusedField != setupFieldConnect {
				pos := m.cursors[m.focusedField]
				m.values[m.focusedField] = insertText(m.values[m.focusedField], pos, string(msg.Runes))
				m.cursors[m.focusedField] = pos + len(string(msg.Runes))
			}
		}
	}

	return m, nil
}

func (m SetupModel) moveCursor(delta int) {
	pos := m.cursors[m.focusedField] + delta
	if pos < 0 || pos > len(m.values[m.focusedField]) {
		return
	}
	m.cursors[m.focusedField] = pos
}

func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	if m.connecting {
		return m, nil
	}

	endpoint, err := parseEndpoint(m.values[setupFieldHost], m.values[setupFieldPort])
	if err != nil {
		m.connectionError = err.Error()
		return m, nil
	}

	m.connecting = true
	m.connectionError = ""
	credentials := aquos.Credentials{ID: m.values[setupFieldUser], Pass: m.values[setupFieldPassword]}
	opts := internal.NewModeOptions(internal.WithDebug(m.debugMode), internal.WithTest(m.testMode))

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		remote, err := Connect(ctx, endpoint, credentials, opts)
		return connectedMsg{remote: remote, err: err}
	}
}

// parseEndpoint accepts "host" or "host:port"; an explicit port in host
// wins over the port field.
func parseEndpoint(host, port string) (aquos.Endpoint, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return aquos.Endpoint{}, fmt.Errorf("host address is required")
	}

	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}

	controlPort, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || controlPort <= 0 || controlPort > 65535 {
		return aquos.Endpoint{}, fmt.Errorf("invalid control port: %q", port)
	}

	return aquos.Endpoint{
		Host:            host,
		ControlPort:     controlPort,
		DescriptionPort: aquos.DefaultDescriptionPort,
	}, nil
}

// Connect creates a session with stock options and runs its setup
func Connect(ctx context.Context, endpoint aquos.Endpoint, credentials aquos.Credentials, opts *internal.FnModeOptions) (*aquos.Remote, error) {
	options := aquos.DefaultOptions()
	options.Credentials = credentials

	session, err := aquos.NewSession(endpoint, aquos.NewTransport(opts, 10*time.Second), options)
	if err != nil {
		return nil, err
	}
	if err := session.Setup(ctx); err != nil {
		return nil, err
	}
	return aquos.NewRemote(session, opts), nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AQUOS Remote - Device Setup"))
	b.WriteString("\n\n")

	for field := setupFieldHost; field < setupFieldConnect; field++ {
		b.WriteString(subtitleStyle.Render(setupLabels[field]))
		b.WriteString("\n")

		style := inputStyle
		focused := m.focusedField == field
		if focused {
			style = inputFocusedStyle
		}

		text := m.values[field]
		if field == setupFieldPassword {
			text = strings.Repeat("*", len(text))
		}
		b.WriteString(style.Render(renderTextWithCursor(text, m.cursors[field], focused)))
		b.WriteString("\n\n")
	}

	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}
	connectText := "Connect"
	if m.connecting {
		connectText = "Connecting..."
	}
	b.WriteString(connectStyle.Render(connectText))
	b.WriteString("\n\n")

	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("✗ " + m.connectionError))
		b.WriteString("\n\n")
	}

	if m.testMode {
		b.WriteString(dimStyle.Render("Test mode: a simulated television answers all requests"))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("Tab/↑↓: Move • Enter: Next/Connect • Esc: Quit"))
	return b.String()
}
