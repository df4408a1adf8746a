package aquos

import (
	"context"
	"errors"
	"fmt"

	"aquos/internal"
	"aquos/internal/device"
	"aquos/internal/logger"
)

// Remote implements the Device interface for Sharp AQUOS TVs
type Remote struct {
	session *Session
	info    device.DeviceInfo
}

// NewRemote wraps a session so it can be driven with JSON actions
func NewRemote(session *Session, opts *internal.FnModeOptions) *Remote {
	if opts != nil && opts.Debug {
		logger.SetLevel(logger.LOG_DEBUG)
	}

	return &Remote{
		session: session,
		info: device.DeviceInfo{
			Type:    "aquos_tv",
			Model:   "Sharp AQUOS",
			Address: session.Endpoint().String(),
			Capabilities: []string{
				"remote_control",
				"power_control",
				"audio_control",
				"input_control",
				"macro_control",
			},
		},
	}
}

// Session returns the underlying session.
func (r *Remote) Session() *Session {
	return r.session
}

// GetDeviceInfo returns information about this television, completed
// with its identity once discovery has run.
func (r *Remote) GetDeviceInfo() device.DeviceInfo {
	info := r.info
	info.Name = r.session.Name()
	info.Ready = r.session.Ready()
	if identity, ok := r.session.Identity(); ok {
		info.Manufacturer = identity.Manufacturer
		info.Model = identity.ModelName
		info.UDN = identity.UDN
		info.AccessoryID = identity.AccessoryID().String()
	}
	return info
}

// Process handles JSON action requests and routes them to the session
func (r *Remote) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failure(device.CodeInvalidRequest, "%v", err), nil
	}

	switch request.Type {
	case device.ActionTypeRemote:
		return r.processRemoteAction(ctx, request)
	case device.ActionTypeInput:
		return r.processInputAction(ctx, request)
	case device.ActionTypePower:
		return r.processPowerAction(ctx, request)
	case device.ActionTypeMute:
		return r.processMuteAction(ctx, request)
	case device.ActionTypeVolume:
		return r.processVolumeAction(ctx, request)
	case device.ActionTypeNumber:
		n, err := request.IntParameter("number")
		if err != nil {
			return device.Failure(device.CodeInvalidRequest, "%v", err), nil
		}
		return r.result(r.session.SendNumber(ctx, n), fmt.Sprintf("Number %d sent", n))
	case device.ActionTypeMacro:
		return r.result(r.session.RunMacro(ctx, request.Action), fmt.Sprintf("Macro '%s' completed", request.Action))
	case device.ActionTypeState:
		return &device.ActionResponse{Success: true, Data: r.session.State()}, nil
	default:
		return device.Failure(device.CodeInvalidRequest, "unsupported action type: %s", request.Type), nil
	}
}

func (r *Remote) processRemoteAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	remoteAction := device.RemoteAction(request.Action)

	var err error
	switch remoteAction {
	case device.RemoteActionPowerOn:
		err = r.session.SetPower(ctx, true)
	case device.RemoteActionPowerOff:
		err = r.session.SetPower(ctx, false)
	case device.RemoteActionMute:
		err = r.session.ToggleMute(ctx)
	default:
		code, exists := remoteActionMap[remoteAction]
		if !exists {
			return device.Failure(device.CodeInvalidRequest, "unsupported remote action: %s", request.Action), nil
		}
		err = r.session.SendKey(ctx, code)
	}

	return r.result(err, fmt.Sprintf("Remote action '%s' executed successfully", request.Action))
}

func (r *Remote) processInputAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	if device.InputAction(request.Action) == device.InputActionList {
		registry := r.session.Registry()
		if registry == nil {
			return r.result(ErrUninitialized, "")
		}
		return &device.ActionResponse{Success: true, Data: Inputs(registry)}, nil
	}

	id, err := request.IntParameter("identifier")
	if err != nil {
		return device.Failure(device.CodeInvalidRequest, "%v", err), nil
	}

	switch device.InputAction(request.Action) {
	case device.InputActionSelect:
		return r.result(r.session.SelectIdentifier(ctx, id), fmt.Sprintf("Input %d selected", id))
	case device.InputActionSet:
		return r.result(r.session.SetActiveIdentifier(id), fmt.Sprintf("Input %d recorded", id))
	default:
		return device.Failure(device.CodeInvalidRequest, "unsupported input action: %s", request.Action), nil
	}
}

func (r *Remote) processPowerAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	on, err := switchParameter(request)
	if err != nil {
		return device.Failure(device.CodeInvalidRequest, "%v", err), nil
	}
	return r.result(r.session.SetPower(ctx, on), fmt.Sprintf("Power %s", powerFrom(on)))
}

func (r *Remote) processMuteAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	if request.Action == "toggle" {
		return r.result(r.session.ToggleMute(ctx), "Mute toggled")
	}
	on, err := switchParameter(request)
	if err != nil {
		return device.Failure(device.CodeInvalidRequest, "%v", err), nil
	}
	return r.result(r.session.SetMute(ctx, on), fmt.Sprintf("Mute %s requested", muteFrom(on)))
}

func (r *Remote) processVolumeAction(ctx context.Context, request *device.ActionRequest) (*device.ActionResponse, error) {
	switch request.Action {
	case "up", "increment":
		return r.result(r.session.VolumeUp(ctx), "Volume up")
	case "down", "decrement":
		return r.result(r.session.VolumeDown(ctx), "Volume down")
	default:
		return device.Failure(device.CodeInvalidRequest, "unsupported volume action: %s", request.Action), nil
	}
}

// switchParameter accepts "on"/"off" as the action or an "on" parameter.
func switchParameter(request *device.ActionRequest) (bool, error) {
	switch request.Action {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "set":
		return request.BoolParameter("on")
	}
	return false, fmt.Errorf("unsupported %s action: %s", request.Type, request.Action)
}

// result converts a session error into a classified response.
func (r *Remote) result(err error, message string) (*device.ActionResponse, error) {
	if err == nil {
		return &device.ActionResponse{Success: true, Data: message}, nil
	}

	code := device.CodeInternal
	switch {
	case errors.Is(err, ErrUninitialized):
		code = device.CodeUninitialized
	case errors.Is(err, ErrUnknownIdentifier), errors.Is(err, ErrUnknownMacro):
		code = device.CodeUnknownIdentifier
	case errors.Is(err, ErrTransport):
		code = device.CodeTransport
	case errors.Is(err, ErrConfiguration):
		code = device.CodeInvalidRequest
	}
	return device.Failure(code, "%v", err), nil
}

// Input is one entry of the input list as shown to users.
type Input struct {
	Identifier int        `json:"identifier"`
	Kind       ActionKind `json:"kind"`
	Label      string     `json:"label"`
	Hidden     bool       `json:"hidden,omitempty"`
}

// Inputs lists the registry in identifier order.
func Inputs(registry *Registry) []Input {
	entries := registry.Entries()
	inputs := make([]Input, len(entries))
	for i, desc := range entries {
		inputs[i] = Input{
			Identifier: i,
			Kind:       desc.Kind,
			Label:      desc.Label(),
			Hidden:     desc.Kind == KindTuner && desc.Channel.Skipped(),
		}
	}
	return inputs
}

// remoteActionMap maps device remote actions to AQUOS remote codes
var remoteActionMap = map[device.RemoteAction]RemoteCode{
	device.RemoteActionVolumeUp:    VolumeUp,
	device.RemoteActionVolumeDown:  VolumeDown,
	device.RemoteActionChannelUp:   ChannelUp,
	device.RemoteActionChannelDown: ChannelDown,
	device.RemoteActionInfo:        ChannelInfo,
	device.RemoteActionUp:          Up,
	device.RemoteActionDown:        Down,
	device.RemoteActionLeft:        Left,
	device.RemoteActionRight:       Right,
	device.RemoteActionConfirm:     Select,
	device.RemoteActionHome:        Home,
	device.RemoteActionBack:        Back,
	device.RemoteActionExit:        Exit,
	device.RemoteActionPlay:        Play,
	device.RemoteActionPause:       Pause,
	device.RemoteActionStop:        Stop,
	device.RemoteActionNext:        Next,
	device.RemoteActionPrevious:    Previous,
	device.RemoteActionRewind:      Rewind,
	device.RemoteActionFastForward: FastForward,
	device.RemoteActionTuner:       TunerInput,
	device.RemoteActionTerrestrial: Terrestrial,
	device.RemoteActionBS:          BS,
	device.RemoteActionCS:          CS,
}
