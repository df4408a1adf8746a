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
	tea "github.com/charmbracelet/bubbletea"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool

	debugMode bool
	testMode  bool

	setupModel  SetupModel
	remoteModel RemoteModel
}

func initialModelWithFlags(debug, test bool) model {
	return model{
		currentScreen: screenDeviceSetup,
		debugMode:     debug,
		testMode:      test,
		setupModel:    NewSetupModelWithFlags(debug, test),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = size.Width
		m.height = size.Height
		m.remoteModel, _ = m.remoteModel.Update(msg)
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "esc":
			if m.currentScreen == screenDeviceSetup {
				m.quitting = true
				return m, tea.Quit
			}

		case "q":
			// Letters are text input on the setup screen.
			if m.currentScreen == screenRemoteControl {
				m.currentScreen = screenDeviceSetup
				m.setupModel = NewSetupModelWithFlags(m.debugMode, m.testMode)
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	switch m.currentScreen {
	case screenDeviceSetup:
		m.setupModel, cmd = m.setupModel.Update(msg)
		if m.setupModel.IsConnected() {
			m.remoteModel = NewRemoteModelWithFlags(m.setupModel.Remote(), m.debugMode, m.testMode)
			m.remoteModel.width = m.width
			m.remoteModel.height = m.height
			m.currentScreen = screenRemoteControl
		}

	case screenRemoteControl:
		m.remoteModel, cmd = m.remoteModel.Update(msg)
	}

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using AQUOS Remote!") + "\n"
	}

	switch m.currentScreen {
	case screenDeviceSetup:
		return m.setupModel.View()
	case screenRemoteControl:
		return m.remoteModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the interactive remote until the user quits
func StartTUI(debug, test bool) error {
	p := tea.NewProgram(
		initialModelWithFlags(debug, test),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
