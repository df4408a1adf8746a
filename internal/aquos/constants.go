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

package aquos

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Remote Control Codes for Sharp AQUOS TVs
const (
	// Power Controls
	PowerOn  RemoteCode = "POWR0001"
	PowerOff RemoteCode = "POWR0000"

	// Volume Controls
	VolumeUp   RemoteCode = "IRCO0114"
	VolumeDown RemoteCode = "IRCO0115"
	Mute       RemoteCode = "IRCO0117"

	// Channel Controls
	ChannelUp   RemoteCode = "IRCO0111"
	ChannelDown RemoteCode = "IRCO0112"
	ChannelInfo RemoteCode = "IRCO0260"

	// Navigation Controls
	Up     RemoteCode = "IRCO0157"
	Down   RemoteCode = "IRCO0120"
	Left   RemoteCode = "IRCO01D7"
	Right  RemoteCode = "IRCO01D8"
	Select RemoteCode = "IRCO0152"
	Back   RemoteCode = "IRCO01E4"
	Exit   RemoteCode = "IRCO01F5"
	Home   RemoteCode = "IRCO02BB"

	// Playback Controls
	Play        RemoteCode = "IRCO0FA7"
	Stop        RemoteCode = "IRCO0FA6"
	Pause       RemoteCode = "IRCO0FA5"
	Previous    RemoteCode = "IRCO0FB1"
	Next        RemoteCode = "IRCO0FB2"
	Rewind      RemoteCode = "IRCO0FA4"
	FastForward RemoteCode = "IRCO0FA8"

	// Broadcast Modes
	Terrestrial RemoteCode = "IRCO0289"
	BS          RemoteCode = "IRCO028A"
	CS          RemoteCode = "IRCO028B"

	// Input Controls
	TunerInput RemoteCode = "IDIN0000"
)

// Protocol paths and names for the X_IPcontrol service
const (
	ControlPath      = "/control/X_IPcontrol"
	DescriptionPath  = "/ssdp/device-desc.xml"
	ServiceNamespace = "urn:schemas-sharp-co-jp:service:X_IPcontrol:1"

	soapEnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncodingStyle     = "http://schemas.xmlsoap.org/soap/encoding/"

	// InfoChannelList is the InfoName that asks X_GetTvStatus for the channel list.
	InfoChannelList = "TDSvChList"
)

// SOAP actions understood by the control service
const (
	ActionGetStatus  Action = "X_GetTvStatus"
	ActionSetControl Action = "X_SetControlCommand"
)

const (
	// MaxHDMIInputs is the highest HDMI slot the IDIN command family addresses.
	MaxHDMIInputs = 6

	numberBase = 0x25d
	maxNumber  = 12
)

// NumberCode returns the code for numeric key n (1..12).
func NumberCode(n int) (RemoteCode, error) {
	if n < 1 || n > maxNumber {
		return "", fmt.Errorf("number key %d out of range 1-%d", n, maxNumber)
	}
	return RemoteCode(fmt.Sprintf("IRCO0%X", numberBase+n)), nil
}

// HDMICode returns the input switch code for HDMI slot n (1..6).
func HDMICode(n int) (RemoteCode, error) {
	if n < 1 || n > MaxHDMIInputs {
		return "", fmt.Errorf("hdmi input %d out of range 1-%d", n, MaxHDMIInputs)
	}
	return RemoteCode(fmt.Sprintf("IDIN001%d", n)), nil
}

// keyNames maps the names used in configuration files and on the command
// line to remote codes.
var keyNames = map[string]RemoteCode{
	"power-on":     PowerOn,
	"power-off":    PowerOff,
	"volume-up":    VolumeUp,
	"volume-down":  VolumeDown,
	"mute":         Mute,
	"channel-up":   ChannelUp,
	"channel-down": ChannelDown,
	"info":         ChannelInfo,
	"up":           Up,
	"down":         Down,
	"left":         Left,
	"right":        Right,
	"select":       Select,
	"back":         Back,
	"exit":         Exit,
	"home":         Home,
	"play":         Play,
	"stop":         Stop,
	"pause":        Pause,
	"previous":     Previous,
	"next":         Next,
	"rewind":       Rewind,
	"fast-forward": FastForward,
	"terrestrial":  Terrestrial,
	"bs":           BS,
	"cs":           CS,
	"tuner":        TunerInput,
}

// ParseKey resolves a key name such as "home", "num-3" or "hdmi-2".
func ParseKey(name string) (RemoteCode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := keyNames[name]; ok {
		return code, nil
	}

	if rest, ok := strings.CutPrefix(name, "num-"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return NumberCode(n)
		}
	}
	if rest, ok := strings.CutPrefix(name, "hdmi-"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return HDMICode(n)
		}
	}

	return "", fmt.Errorf("unknown key: %s", name)
}

// KeyNames lists the fixed key names accepted by ParseKey.
func KeyNames() []string {
	names := make([]string, 0, len(keyNames))
	for name := range keyNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
