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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aquos/internal/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCommandDelay    = 500 * time.Millisecond
	DefaultSettleDelay     = 3 * time.Second
	DefaultDescriptionPort = 8008
	DefaultControlPort     = 10002
)

// MuteToggle decides when SetMute sends the mute toggle.
type MuteToggle string

const (
	// MuteToggleOnMatch sends the toggle only when the requested state
	// equals the stored one. It is the default.
	MuteToggleOnMatch MuteToggle = "on-match"
	// MuteToggleOnChange sends the toggle when the requested state differs.
	MuteToggleOnChange MuteToggle = "on-change"
)

// Application is a launchable app input and the macro that opens it.
type Application struct {
	Name  string
	Macro string
}

// DefaultApplications are the app inputs offered when none are configured.
func DefaultApplications() []Application {
	return []Application{
		{Name: "Netflix", Macro: MacroLaunchA},
		{Name: "YouTube", Macro: MacroLaunchB},
	}
}

// Options configures a Session. Zero delays mean no pause.
type Options struct {
	// Name labels logs and metrics. Defaults to the endpoint address.
	Name         string
	Credentials  Credentials
	Applications []Application
	HDMIInputs   int
	MuteToggle   MuteToggle
	CommandDelay time.Duration
	SettleDelay  time.Duration
	// Macros adds to or replaces the built-in macros by name.
	Macros []Macro
	// OnStateChange is called after every state change, in the order the
	// changes happened. It must not change the session state itself.
	OnStateChange func(State)
}

// DefaultOptions returns the options used for a stock television.
func DefaultOptions() Options {
	return Options{
		Applications: DefaultApplications(),
		HDMIInputs:   MaxHDMIInputs,
		MuteToggle:   MuteToggleOnMatch,
		CommandDelay: DefaultCommandDelay,
		SettleDelay:  DefaultSettleDelay,
	}
}

// Session is the serialized gateway to one television. Commands are
// refused with ErrUninitialized until Setup has succeeded.
type Session struct {
	endpoint  Endpoint
	transport Transport
	codec     Codec
	opts      Options
	logger    zerolog.Logger

	macros    map[string]Macro
	appMacros map[string]string

	// slot admits one request to the television at a time.
	slot chan struct{}
	// muteMu keeps the read-decide-send sequence of mute atomic.
	muteMu sync.Mutex
	// notifyMu orders state changes together with their OnStateChange call.
	notifyMu sync.Mutex

	mu       sync.RWMutex
	identity *DeviceIdentity
	channels []Channel
	registry *Registry
	state    State
}

// NewSession creates a session. No I/O happens until Setup.
func NewSession(endpoint Endpoint, transport Transport, opts Options) (*Session, error) {
	if endpoint.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConfiguration)
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrConfiguration)
	}
	if opts.Name == "" {
		opts.Name = endpoint.String()
	}
	switch opts.MuteToggle {
	case "":
		opts.MuteToggle = MuteToggleOnMatch
	case MuteToggleOnMatch, MuteToggleOnChange:
	default:
		return nil, fmt.Errorf("%w: unknown mute toggle %q", ErrConfiguration, opts.MuteToggle)
	}
	if opts.CommandDelay < 0 || opts.SettleDelay < 0 {
		return nil, fmt.Errorf("%w: delays must not be negative", ErrConfiguration)
	}

	macros := map[string]Macro{
		MacroLaunchA: LaunchApplicationA(opts.CommandDelay, opts.SettleDelay),
		MacroLaunchB: LaunchApplicationB(opts.CommandDelay, opts.SettleDelay),
	}
	for _, m := range opts.Macros {
		if m.Name == "" || len(m.Steps) == 0 {
			return nil, fmt.Errorf("%w: macro %q has no name or steps", ErrConfiguration, m.Name)
		}
		macros[m.Name] = m
	}

	appMacros := make(map[string]string, len(opts.Applications))
	for _, app := range opts.Applications {
		if _, ok := macros[app.Macro]; !ok {
			return nil, fmt.Errorf("%w: application %q uses unknown macro %q", ErrConfiguration, app.Name, app.Macro)
		}
		appMacros[app.Name] = app.Macro
	}

	return &Session{
		endpoint:  endpoint,
		transport: transport,
		codec:     Codec{Credentials: opts.Credentials},
		opts:      opts,
		logger:    logger.For("session").With().Str("device", opts.Name).Logger(),
		macros:    macros,
		appMacros: appMacros,
		slot:      make(chan struct{}, 1),
		state:     initialState(),
	}, nil
}

// Name is the label of the session.
func (s *Session) Name() string {
	return s.opts.Name
}

// Endpoint returns the address the session talks to.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Discover fetches and stores the device description.
func (s *Session) Discover(ctx context.Context) (DeviceIdentity, error) {
	identity, err := s.fetchIdentity(ctx)
	if err != nil {
		return DeviceIdentity{}, err
	}

	s.mu.Lock()
	s.identity = &identity
	s.mu.Unlock()

	return identity, nil
}

// EnumerateChannels queries and stores the channel list.
func (s *Session) EnumerateChannels(ctx context.Context) ([]Channel, error) {
	channels, err := s.fetchChannels(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.channels = channels
	s.mu.Unlock()

	return append([]Channel(nil), channels...), nil
}

// Setup runs discovery and channel enumeration concurrently, waits for
// both, and builds the registry. On failure the session stays (or
// becomes) uninitialized.
func (s *Session) Setup(ctx context.Context) error {
	var (
		g        errgroup.Group
		identity DeviceIdentity
		channels []Channel
	)
	g.Go(func() error {
		var err error
		identity, err = s.fetchIdentity(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		channels, err = s.fetchChannels(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.reset()
		return err
	}

	registry, err := BuildRegistry(s.applicationNames(), channels, s.opts.HDMIInputs)
	if err != nil {
		s.reset()
		observeDiscoveryFailure(s.opts.Name, StageRegistry)
		return err
	}

	s.mu.Lock()
	s.identity = &identity
	s.channels = channels
	s.registry = registry
	s.mu.Unlock()

	s.logger.Info().
		Str("name", identity.FriendlyName).
		Str("model", identity.ModelName).
		Int("channels", len(channels)).
		Int("inputs", registry.Len()).
		Msg("Session ready")

	return nil
}

func (s *Session) fetchIdentity(ctx context.Context) (DeviceIdentity, error) {
	body, err := s.transport.Get(ctx, s.endpoint.DescriptionURL())
	if err != nil {
		return DeviceIdentity{}, s.discoveryFailed(StageDescription, err)
	}
	identity, err := s.codec.DecodeDeviceDescription(body)
	if err != nil {
		return DeviceIdentity{}, s.discoveryFailed(StageDescription, err)
	}
	return identity, nil
}

func (s *Session) fetchChannels(ctx context.Context) ([]Channel, error) {
	envelope, err := s.codec.Encode(ActionGetStatus, Fields{{Name: "InfoName", Value: InfoChannelList}})
	if err != nil {
		return nil, s.discoveryFailed(StageChannels, err)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, s.discoveryFailed(StageChannels, err)
	}
	body, err := s.transport.Post(ctx, s.endpoint.ControlURL(), ActionGetStatus, envelope)
	release()
	if err != nil {
		return nil, s.discoveryFailed(StageChannels, err)
	}

	channels, err := s.codec.DecodeChannelList(body)
	if err != nil {
		return nil, s.discoveryFailed(StageChannels, err)
	}
	return channels, nil
}

func (s *Session) discoveryFailed(stage DiscoveryStage, err error) error {
	observeDiscoveryFailure(s.opts.Name, stage)
	s.logger.Error().Err(err).Str("stage", string(stage)).Msg("Discovery failed")
	return &DiscoveryError{Stage: stage, Err: err}
}

func (s *Session) reset() {
	s.mu.Lock()
	s.registry = nil
	s.mu.Unlock()
}

func (s *Session) applicationNames() []string {
	names := make([]string, len(s.opts.Applications))
	for i, app := range s.opts.Applications {
		names[i] = app.Name
	}
	return names
}

// Ready reports whether Setup has succeeded.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry != nil
}

// Identity returns the discovered identity, if any.
func (s *Session) Identity() (DeviceIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return DeviceIdentity{}, false
	}
	return *s.identity, true
}

// Channels returns a copy of the enumerated channel list.
func (s *Session) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Channel(nil), s.channels...)
}

// Registry returns the identifier registry, or nil before Setup.
func (s *Session) Registry() *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// State returns a snapshot of the tracked state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MacroNames lists the macros RunMacro accepts.
func (s *Session) MacroNames() []string {
	names := make([]string, 0, len(s.macros))
	for name := range s.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) updateState(fn func(*State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	before := s.state
	fn(&s.state)
	after := s.state
	s.mu.Unlock()

	if after != before && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(after)
	}
}

func (s *Session) acquire(ctx context.Context) (func(), error) {
	select {
	case s.slot <- struct{}{}:
		return func() { <-s.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch sends one X_SetControlCommand and then holds the session for
// postDelay, so the next command cannot start before the pause is over.
// The pause is not shortened by ctx.
func (s *Session) Dispatch(ctx context.Context, fields Fields, postDelay time.Duration) error {
	if !s.Ready() {
		observeDispatch(s.opts.Name, time.Now(), ErrUninitialized)
		return ErrUninitialized
	}

	body, err := s.codec.Encode(ActionSetControl, fields)
	if err != nil {
		observeDispatch(s.opts.Name, time.Now(), err)
		return err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	started := time.Now()
	_, err = s.transport.Post(ctx, s.endpoint.ControlURL(), ActionSetControl, body)
	observeDispatch(s.opts.Name, started, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("Command failed")
		return err
	}

	s.logger.Debug().
		Str("fields", fmt.Sprint(fields)).
		Dur("delay", postDelay).
		Msg("Command sent")

	if postDelay > 0 {
		time.Sleep(postDelay)
	}
	return nil
}

// SendKey sends a remote key with its usual pause.
func (s *Session) SendKey(ctx context.Context, code RemoteCode) error {
	return s.Dispatch(ctx, Command(code), DelayFor(code, s.opts.CommandDelay))
}

// SetPower switches the set on or off.
func (s *Session) SetPower(ctx context.Context, on bool) error {
	code := PowerOff
	if on {
		code = PowerOn
	}
	if err := s.SendKey(ctx, code); err != nil {
		return err
	}
	s.updateState(func(st *State) { st.Power = powerFrom(on) })
	return nil
}

// SetMute requests a mute state. The set only knows a mute toggle, so
// whether the toggle is sent depends on the MuteToggle policy.
func (s *Session) SetMute(ctx context.Context, on bool) error {
	s.muteMu.Lock()
	defer s.muteMu.Unlock()

	current := s.State().Mute == MuteStateOn
	send := on != current
	if s.opts.MuteToggle == MuteToggleOnMatch {
		send = on == current
	}
	if !send {
		return nil
	}

	if err := s.SendKey(ctx, Mute); err != nil {
		return err
	}
	s.updateState(func(st *State) { st.Mute = muteFrom(on) })
	return nil
}

// ToggleMute always sends the toggle and flips the stored state.
func (s *Session) ToggleMute(ctx context.Context) error {
	s.muteMu.Lock()
	defer s.muteMu.Unlock()

	if err := s.SendKey(ctx, Mute); err != nil {
		return err
	}
	s.updateState(func(st *State) { st.Mute = muteFrom(st.Mute != MuteStateOn) })
	return nil
}

func (s *Session) VolumeUp(ctx context.Context) error    { return s.SendKey(ctx, VolumeUp) }
func (s *Session) VolumeDown(ctx context.Context) error  { return s.SendKey(ctx, VolumeDown) }
func (s *Session) ChannelUp(ctx context.Context) error   { return s.SendKey(ctx, ChannelUp) }
func (s *Session) ChannelDown(ctx context.Context) error { return s.SendKey(ctx, ChannelDown) }
func (s *Session) Up(ctx context.Context) error          { return s.SendKey(ctx, Up) }
func (s *Session) Down(ctx context.Context) error        { return s.SendKey(ctx, Down) }
func (s *Session) Left(ctx context.Context) error        { return s.SendKey(ctx, Left) }
func (s *Session) Right(ctx context.Context) error       { return s.SendKey(ctx, Right) }
func (s *Session) Select(ctx context.Context) error      { return s.SendKey(ctx, Select) }
func (s *Session) Back(ctx context.Context) error        { return s.SendKey(ctx, Back) }
func (s *Session) Exit(ctx context.Context) error        { return s.SendKey(ctx, Exit) }
func (s *Session) Home(ctx context.Context) error        { return s.SendKey(ctx, Home) }

// SendNumber presses numeric key n (1..12).
func (s *Session) SendNumber(ctx context.Context, n int) error {
	code, err := NumberCode(n)
	if err != nil {
		return err
	}
	return s.SendKey(ctx, code)
}

// SetHDMIInput switches to HDMI slot n.
func (s *Session) SetHDMIInput(ctx context.Context, n int) error {
	code, err := HDMICode(n)
	if err != nil {
		return err
	}
	return s.SendKey(ctx, code)
}

// SetTunerInput switches to the built-in tuner.
func (s *Session) SetTunerInput(ctx context.Context) error {
	return s.SendKey(ctx, TunerInput)
}

// SetActiveIdentifier records id as the active input without sending
// anything. It is used to restore a persisted selection.
func (s *Session) SetActiveIdentifier(id int) error {
	registry := s.Registry()
	if registry == nil {
		return ErrUninitialized
	}
	if id != NoIdentifier {
		if _, err := registry.Resolve(id); err != nil {
			return err
		}
	}
	s.updateState(func(st *State) { st.ActiveIdentifier = id })
	return nil
}

// SelectIdentifier switches to the input assigned to id: an app runs its
// macro, a channel is tuned and an HDMI slot is selected.
func (s *Session) SelectIdentifier(ctx context.Context, id int) error {
	registry := s.Registry()
	if registry == nil {
		return ErrUninitialized
	}
	desc, err := registry.Resolve(id)
	if err != nil {
		return err
	}

	switch desc.Kind {
	case KindApplication:
		err = s.RunMacro(ctx, s.appMacros[desc.Application])
	case KindTuner:
		err = s.Dispatch(ctx, Command(desc.Channel.Command), 0)
	case KindHDMI:
		err = s.SetHDMIInput(ctx, desc.HDMISlot)
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("identifier", id).
		Str("input", desc.Label()).
		Msg("Input selected")

	s.updateState(func(st *State) { st.ActiveIdentifier = id })
	return nil
}

// RunMacro runs a built-in or configured macro by name.
func (s *Session) RunMacro(ctx context.Context, name string) error {
	m, ok := s.macros[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMacro, name)
	}
	if !s.Ready() {
		return ErrUninitialized
	}

	err := m.Run(ctx, s)
	observeMacro(s.opts.Name, name, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("macro", name).Msg("Macro aborted, state unknown")
	}
	return err
}
