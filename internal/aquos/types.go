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
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// RemoteCode represents an 8 character X_SetControlCommand code
type RemoteCode string

// Action represents a SOAP action of the X_IPcontrol service
type Action string

// SOAPAction returns the quoted SOAPACTION header value for the action.
func (a Action) SOAPAction() string {
	return `"` + ServiceNamespace + "#" + string(a) + `"`
}

// Endpoint addresses one television on the network.
type Endpoint struct {
	Host            string
	ControlPort     int
	DescriptionPort int
}

// ControlURL is the URL that receives SOAP envelopes.
func (e Endpoint) ControlURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(e.Host, strconv.Itoa(e.ControlPort)), ControlPath)
}

// DescriptionURL is the URL of the UPnP device description.
func (e Endpoint) DescriptionURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(e.Host, strconv.Itoa(e.DescriptionPort)), DescriptionPath)
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.ControlPort))
}

// Credentials are appended to every envelope as the ID and Pass fields.
// Empty values are accepted by sets that do not require a login.
type Credentials struct {
	ID   string
	Pass string
}

// DeviceIdentity is read from the device description during discovery.
type DeviceIdentity struct {
	FriendlyName string `json:"friendly_name"`
	Manufacturer string `json:"manufacturer"`
	ModelName    string `json:"model_name"`
	UDN          string `json:"udn"`
}

var accessoryNamespace = uuid.MustParse("6f1d2c3e-8a51-5b0e-9c47-2f3a8e6d4b10")

// AccessoryID derives a stable identifier for the television from its UDN,
// so a host can recognise the same set across restarts.
func (d DeviceIdentity) AccessoryID() uuid.UUID {
	return uuid.NewSHA1(accessoryNamespace, []byte(d.UDN+"TV"))
}

// Channel is one broadcast channel from the TDSvChList status query.
type Channel struct {
	RemoteControlNumber string     `json:"rc_number"`
	Name                string     `json:"name"`
	ChannelNumber       string     `json:"ch_number"`
	Skip                string     `json:"skip"`
	EventTitle          string     `json:"event_title"`
	Command             RemoteCode `json:"command"`
}

// Skipped reports whether the set flags the channel as skipped.
func (c Channel) Skipped() bool {
	switch strings.ToLower(strings.TrimSpace(c.Skip)) {
	case "1", "true", "on":
		return true
	}
	return false
}

// DisplayName is the label shown for the channel, e.g. "011: NHK".
// Full-width digits and letters are folded to their ASCII forms.
func (c Channel) DisplayName() string {
	return norm.NFKC.String(c.ChannelNumber + ": " + c.Name)
}

// Power is the stored power state of a session.
type Power string

const (
	PowerStateOff Power = "OFF"
	PowerStateOn  Power = "ON"
)

func powerFrom(on bool) Power {
	if on {
		return PowerStateOn
	}
	return PowerStateOff
}

// MuteState is the stored mute state of a session.
type MuteState string

const (
	MuteStateOff MuteState = "OFF"
	MuteStateOn  MuteState = "ON"
)

func muteFrom(on bool) MuteState {
	if on {
		return MuteStateOn
	}
	return MuteStateOff
}

// NoIdentifier marks that no input has been selected yet.
const NoIdentifier = 999999

// State is the locally tracked view of the set. It is never polled from
// the television.
type State struct {
	Power            Power     `json:"power"`
	Mute             MuteState `json:"mute"`
	ActiveIdentifier int       `json:"active_identifier"`
}

func initialState() State {
	return State{
		Power:            PowerStateOff,
		Mute:             MuteStateOff,
		ActiveIdentifier: NoIdentifier,
	}
}
