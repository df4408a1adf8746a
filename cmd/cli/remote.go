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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aquos/internal/aquos"
	"aquos/internal/device"
	"aquos/internal/logger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const actionTimeout = 30 * time.Second

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, ERR
	Message   string
}

// actionDoneMsg carries the response of an action run in the background
type actionDoneMsg struct {
	button   remoteButton
	request  device.ActionRequest
	response *device.ActionResponse
}

// RemoteModel handles the remote control screen
type RemoteModel struct {
	remote     *aquos.Remote
	deviceInfo device.DeviceInfo
	inputs     []aquos.Input

	selectedButton  remoteButton
	lastButtonPress time.Time
	selectedInput   int
	pending         int

	lastResponse  *device.ActionResponse
	actionHistory []actionHistoryEntry

	debugMode bool
	testMode  bool

	width  int
	height int

	logBuffer []LogEntry
}

// NewRemoteModelWithFlags creates a new remote control screen model with flags
func NewRemoteModelWithFlags(remote *aquos.Remote, debug, test bool) RemoteModel {
	m := RemoteModel{
		remote:     remote,
		deviceInfo: remote.GetDeviceInfo(),
		debugMode:  debug,
		testMode:   test,
	}
	if registry := remote.Session().Registry(); registry != nil {
		m.inputs = aquos.Inputs(registry)
	}
	return m
}

// Update handles remote control screen messages
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionDoneMsg:
		return m.handleActionDone(msg), nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "up":
			return m.press(buttonUp, remoteRequest(device.RemoteActionUp))
		case "down":
			return m.press(buttonDown, remoteRequest(device.RemoteActionDown))
		case "left":
			return m.press(buttonLeft, remoteRequest(device.RemoteActionLeft))
		case "right":
			return m.press(buttonRight, remoteRequest(device.RemoteActionRight))
		case "enter":
			return m.press(buttonOK, remoteRequest(device.RemoteActionConfirm))

		case "p":
			// Absolute codes: invert the last known power state.
			on := m.remote.Session().State().Power != aquos.PowerStateOn
			return m.press(buttonPower, device.ActionRequest{
				Type:       device.ActionTypePower,
				Action:     "set",
				Parameters: map[string]interface{}{"on": on},
			})
		case "+", "=":
			return m.press(buttonVolumeUp, remoteRequest(device.RemoteActionVolumeUp))
		case "-":
			return m.press(buttonVolumeDown, remoteRequest(device.RemoteActionVolumeDown))
		case "m":
			return m.press(buttonMute, device.ActionRequest{Type: device.ActionTypeMute, Action: "toggle"})

		case "pgup", "ctrl+up":
			return m.press(buttonChannelUp, remoteRequest(device.RemoteActionChannelUp))
		case "pgdown", "ctrl+down":
			return m.press(buttonChannelDown, remoteRequest(device.RemoteActionChannelDown))

		case "1", "2", "3", "4", "5", "6", "7", "8", "9", "0":
			n := int(key[0] - '0')
			if n == 0 {
				n = 10
			}
			return m.press(buttonNumber, device.ActionRequest{
				Type:       device.ActionTypeNumber,
				Action:     "send",
				Parameters: map[string]interface{}{"number": n},
			})

		case "h":
			return m.press(buttonHome, remoteRequest(device.RemoteActionHome))
		case "backspace":
			return m.press(buttonBack, remoteRequest(device.RemoteActionBack))
		case "x":
			return m.press(buttonExit, remoteRequest(device.RemoteActionExit))
		case "i":
			return m.press(buttonInfo, remoteRequest(device.RemoteActionInfo))
		case "t":
			return m.press(buttonTuner, remoteRequest(device.RemoteActionTuner))

		case "tab":
			m.cycleInput(1)
			return m, nil
		case "shift+tab":
			m.cycleInput(-1)
			return m, nil
		case "s":
			if len(m.inputs) == 0 {
				return m, nil
			}
			return m.press(buttonInput, device.ActionRequest{
				Type:       device.ActionTypeInput,
				Action:     string(device.InputActionSelect),
				Parameters: map[string]interface{}{"identifier": m.inputs[m.selectedInput].Identifier},
			})
		}
	}

	return m, nil
}

func remoteRequest(action device.RemoteAction) device.ActionRequest {
	return device.ActionRequest{Type: device.ActionTypeRemote, Action: string(action)}
}

func (m *RemoteModel) cycleInput(delta int) {
	if len(m.inputs) == 0 {
		return
	}
	m.selectedInput = (m.selectedInput + delta + len(m.inputs)) % len(m.inputs)
}

// press highlights the button and runs the action without blocking the UI.
// The session queues concurrent presses in order.
func (m RemoteModel) press(button remoteButton, request device.ActionRequest) (RemoteModel, tea.Cmd) {
	m.selectedButton = button
	m.lastButtonPress = time.Now()
	m.pending++

	remote := m.remote
	return m, func() tea.Msg {
		actionJSON, err := json.Marshal(request)
		if err != nil {
			return actionDoneMsg{button: button, request: request, response: device.Failure(device.CodeInvalidRequest, "%v", err)}
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		response, err := remote.Process(ctx, actionJSON)
		if err != nil {
			response = device.Failure(device.CodeInternal, "%v", err)
		}
		return actionDoneMsg{button: button, request: request, response: response}
	}
}

func (m RemoteModel) handleActionDone(msg actionDoneMsg) RemoteModel {
	if m.pending > 0 {
		m.pending--
	}
	m.lastResponse = msg.response

	label := describeRequest(msg.request)
	if m.debugMode || m.testMode {
		if msg.response.Success {
			m.addLogEntry("INF", fmt.Sprintf("%s completed", label))
		} else {
			m.addLogEntry("ERR", fmt.Sprintf("%s failed: %s", label, msg.response.Error))
		}
	}

	entry := actionHistoryEntry{
		Timestamp: time.Now(),
		Action:    label,
		Success:   msg.response.Success,
		Error:     msg.response.Error,
	}
	m.actionHistory = append([]actionHistoryEntry{entry}, m.actionHistory...)
	if len(m.actionHistory) > 50 {
		m.actionHistory = m.actionHistory[:50]
	}

	log := logger.For("tui")
	log.Info().
		Str("action", label).
		Bool("success", msg.response.Success).
		Msg("Remote button pressed")

	return m
}

func describeRequest(request device.ActionRequest) string {
	label := string(request.Type)
	if request.Action != "" {
		label += " " + request.Action
	}
	for _, name := range []string{"identifier", "number", "on"} {
		if v, ok := request.Parameters[name]; ok {
			label += fmt.Sprintf(" %s=%v", name, v)
		}
	}
	return label
}

// View renders the remote control screen
func (m RemoteModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("AQUOS Remote - TV Remote Control"))
	sections = append(sections, m.renderDeviceLine())
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderRemoteLayout(),
		strings.Repeat(" ", 6),
		m.renderInputs(),
	))

	if m.lastResponse != nil {
		sections = append(sections, m.renderStatusBar())
	}

	if m.debugMode || m.testMode {
		if logDisplay := m.renderLogDisplay(); logDisplay != "" {
			sections = append(sections, logDisplay)
		}
	}

	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

func (m RemoteModel) renderDeviceLine() string {
	line := successStyle.Render("📺 " + m.deviceInfo.Model)
	if m.deviceInfo.Address != "" {
		line += " " + dimStyle.Render(m.deviceInfo.Address)
	}
	if m.testMode {
		line += " " + lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("(Test)")
	}

	state := m.remote.Session().State()
	active := "none"
	if state.ActiveIdentifier != aquos.NoIdentifier && state.ActiveIdentifier < len(m.inputs) {
		active = m.inputs[state.ActiveIdentifier].Label
	}
	line += "\n" + dimStyle.Render(fmt.Sprintf("Power: %s • Mute: %s • Input: %s", state.Power, state.Mute, active))
	if m.pending > 0 {
		line += " " + lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C")).Render(fmt.Sprintf("(%d queued)", m.pending))
	}
	return line
}

func (m RemoteModel) renderRemoteLayout() string {
	style := func(btn remoteButton) lipgloss.Style {
		if m.selectedButton == btn && time.Since(m.lastButtonPress) < 200*time.Millisecond {
			return remoteButtonActiveStyle
		}
		return remoteButtonStyle
	}

	navColumn := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Render("Power & Navigation:"),
		style(buttonPower).Render(" PWR  "),
		"",
		style(buttonUp).Render("  ↑   "),
		lipgloss.JoinHorizontal(lipgloss.Center,
			style(buttonLeft).Render("  ←   "),
			style(buttonOK).Render(" OK   "),
			style(buttonRight).Render("  →   ")),
		style(buttonDown).Render("  ↓   "),
	)

	volumeColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Render("Volume & Channel:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			style(buttonVolumeUp).Render("VOL + "),
			"  ",
			style(buttonChannelUp).Render("CH +  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			style(buttonVolumeDown).Render("VOL - "),
			"  ",
			style(buttonChannelDown).Render("CH -  ")),
		style(buttonMute).Render("MUTE  "),
	)

	functionColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("Functions:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			style(buttonHome).Render("HOME  "),
			" ",
			style(buttonBack).Render("BACK  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			style(buttonExit).Render("EXIT  "),
			" ",
			style(buttonInfo).Render("INFO  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			style(buttonTuner).Render("TV    "),
			" ",
			style(buttonNumber).Render("1-12  ")),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		navColumn,
		strings.Repeat(" ", 4),
		volumeColumn,
		strings.Repeat(" ", 4),
		functionColumn,
	)
}

func (m RemoteModel) renderInputs() string {
	lines := []string{lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9")).Render("Inputs:")}
	if len(m.inputs) == 0 {
		return strings.Join(append(lines, dimStyle.Render("  (none)")), "\n")
	}

	// Show a window of inputs around the selection.
	const window = 8
	start := max(0, m.selectedInput-window/2)
	end := min(len(m.inputs), start+window)
	start = max(0, end-window)

	active := m.remote.Session().State().ActiveIdentifier
	for _, input := range m.inputs[start:end] {
		cursor := "  "
		if input.Identifier == m.selectedInput {
			cursor = "> "
		}
		text := fmt.Sprintf("%s%2d %s", cursor, input.Identifier, input.Label)
		if input.Identifier == active {
			text += " ●"
		}

		switch {
		case input.Identifier == m.selectedInput:
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6")).Render(text))
		case input.Hidden:
			lines = append(lines, dimStyle.Render(text))
		default:
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}

func (m RemoteModel) renderStatusBar() string {
	if m.lastResponse.Success {
		status := successStyle.Render("✓ Action successful")
		if m.lastResponse.Data != nil {
			status += fmt.Sprintf(": %v", m.lastResponse.Data)
		}
		return status
	}
	return errorStyle.Render("✗ " + m.lastResponse.Error)
}

// renderLogDisplay shows the last three log entries
func (m RemoteModel) renderLogDisplay() string {
	if len(m.logBuffer) == 0 {
		return ""
	}

	const maxLines = 3
	start := max(0, len(m.logBuffer)-maxLines)

	header := "─── LOGS ───"
	if len(m.logBuffer) > maxLines {
		header = "─── LOGS ↓ ───"
	}
	logLines := []string{dimStyle.Render(header)}

	for i := 0; i < maxLines; i++ {
		if start+i >= len(m.logBuffer) {
			logLines = append(logLines, "")
			continue
		}
		entry := m.logBuffer[start+i]

		levelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
		if entry.Level == "ERR" {
			levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
		}

		logLine := fmt.Sprintf("%s [%s] %s",
			entry.Timestamp.Format("15:04:05"),
			levelStyle.Render(entry.Level),
			entry.Message)
		if len(logLine) > 90 {
			logLine = logLine[:87] + "..."
		}
		logLines = append(logLines, logLine)
	}

	return strings.Join(logLines, "\n")
}

func (m *RemoteModel) addLogEntry(level, message string) {
	m.logBuffer = append(m.logBuffer, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})
	if len(m.logBuffer) > 20 {
		m.logBuffer = m.logBuffer[1:]
	}
}

func (m RemoteModel) renderHelpText() string {
	help := "Arrows: Navigate • Enter: OK • P: Power • +/-: Volume • M: Mute • 0-9: Numbers"
	if m.width > 100 {
		help += " • PgUp/PgDn: Channel • H: Home • X: Exit • T: TV • Tab: Input • S: Select • q: Disconnect"
	} else {
		help += " • Tab/S: Inputs • q: Disconnect"
	}
	return helpStyle.Render(help)
}
