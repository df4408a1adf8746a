package device

import (
	"context"
	"encoding/json"
	"fmt"
)

// Device represents a generic device that can process commands
type Device interface {
	// Process handles a JSON-encoded action and executes the corresponding operation
	Process(ctx context.Context, actionJSON []byte) (*ActionResponse, error)

	// GetDeviceInfo returns basic information about the device
	GetDeviceInfo() DeviceInfo
}

// DeviceInfo contains basic information about a device
type DeviceInfo struct {
	Type         string   `json:"type"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model"`
	Address      string   `json:"address"`
	UDN          string   `json:"udn,omitempty"`
	AccessoryID  string   `json:"accessory_id,omitempty"`
	Ready        bool     `json:"ready"`
	Capabilities []string `json:"capabilities"`
}

// ActionType represents the type of action to perform
type ActionType string

const (
	ActionTypeRemote ActionType = "remote"
	ActionTypeInput  ActionType = "input"
	ActionTypePower  ActionType = "power"
	ActionTypeMute   ActionType = "mute"
	ActionTypeVolume ActionType = "volume"
	ActionTypeNumber ActionType = "number"
	ActionTypeMacro  ActionType = "macro"
	ActionTypeState  ActionType = "state"
)

// ActionRequest represents a JSON action request
type ActionRequest struct {
	Type       ActionType             `json:"type"`       // see ActionType
	Action     string                 `json:"action"`     // specific action name
	Parameters map[string]interface{} `json:"parameters"` // optional parameters
}

// ErrorCode classifies a failed action so callers can map it to a status.
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "invalid_request"
	CodeUninitialized     ErrorCode = "uninitialized"
	CodeUnknownIdentifier ErrorCode = "unknown_identifier"
	CodeTransport         ErrorCode = "transport"
	CodeInternal          ErrorCode = "internal"
)

// ActionResponse represents the response from processing an action
type ActionResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    ErrorCode   `json:"code,omitempty"`
}

// Failure builds an unsuccessful response.
func Failure(code ErrorCode, format string, args ...interface{}) *ActionResponse {
	return &ActionResponse{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// RemoteAction represents available remote control actions
type RemoteAction string

const (
	RemoteActionPowerOn     RemoteAction = "power_on"
	RemoteActionPowerOff    RemoteAction = "power_off"
	RemoteActionVolumeUp    RemoteAction = "volume_up"
	RemoteActionVolumeDown  RemoteAction = "volume_down"
	RemoteActionMute        RemoteAction = "mute"
	RemoteActionChannelUp   RemoteAction = "channel_up"
	RemoteActionChannelDown RemoteAction = "channel_down"
	RemoteActionInfo        RemoteAction = "info"
	RemoteActionUp          RemoteAction = "up"
	RemoteActionDown        RemoteAction = "down"
	RemoteActionLeft        RemoteAction = "left"
	RemoteActionRight       RemoteAction = "right"
	RemoteActionConfirm     RemoteAction = "confirm"
	RemoteActionHome        RemoteAction = "home"
	RemoteActionBack        RemoteAction = "back"
	RemoteActionExit        RemoteAction = "exit"
	RemoteActionPlay        RemoteAction = "play"
	RemoteActionPause       RemoteAction = "pause"
	RemoteActionStop        RemoteAction = "stop"
	RemoteActionNext        RemoteAction = "next"
	RemoteActionPrevious    RemoteAction = "previous"
	RemoteActionRewind      RemoteAction = "rewind"
	RemoteActionFastForward RemoteAction = "fast_forward"
	RemoteActionTuner       RemoteAction = "tuner"
	RemoteActionTerrestrial RemoteAction = "terrestrial"
	RemoteActionBS          RemoteAction = "bs"
	RemoteActionCS          RemoteAction = "cs"
)

// InputAction represents actions on the input list
type InputAction string

const (
	InputActionSelect InputAction = "select"
	InputActionSet    InputAction = "set"
	InputActionList   InputAction = "list"
)

// ParseActionRequest parses JSON input into ActionRequest
func ParseActionRequest(actionJSON []byte) (*ActionRequest, error) {
	var request ActionRequest
	if err := json.Unmarshal(actionJSON, &request); err != nil {
		return nil, fmt.Errorf("failed to parse action request: %w", err)
	}

	// Validate required fields
	if request.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	if request.Action == "" && request.Type != ActionTypeState {
		return nil, fmt.Errorf("action is required")
	}

	return &request, nil
}

// IntParameter reads an integer parameter. JSON numbers arrive as float64.
func (r *ActionRequest) IntParameter(name string) (int, error) {
	value, ok := r.Parameters[name]
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", name)
	}
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s parameter must be an integer", name)
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s parameter must be an integer", name)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("invalid %s parameter type", name)
	}
}

// BoolParameter reads a boolean parameter, accepting "on" and "off".
func (r *ActionRequest) BoolParameter(name string) (bool, error) {
	value, ok := r.Parameters[name]
	if !ok {
		return false, fmt.Errorf("%s parameter is required", name)
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "on", "true":
			return true, nil
		case "off", "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid %s parameter type", name)
}
