package aquos

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Built-in macro names
const (
	MacroLaunchA = "launch-a"
	MacroLaunchB = "launch-b"
)

// Step is one key press followed by a pause.
type Step struct {
	Key   RemoteCode    `json:"key" yaml:"key"`
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// Macro is an ordered list of key presses run through one session.
type Macro struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Dispatcher sends one command and waits postDelay before returning.
// *Session implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, fields Fields, postDelay time.Duration) error
}

// Run executes the steps in order and stops at the first failure. Steps
// already sent are not undone. Once started the macro is not interrupted
// by ctx cancellation; the caller's values are still passed down.
func (m Macro) Run(ctx context.Context, d Dispatcher) error {
	ctx = context.WithoutCancel(ctx)
	for i, step := range m.Steps {
		if err := d.Dispatch(ctx, Command(step.Key), step.Delay); err != nil {
			return fmt.Errorf("macro %s step %d (%s): %w", m.Name, i+1, step.Key, err)
		}
	}
	return nil
}

// LaunchApplicationA primes the home screen, then moves right twice and
// selects twice. The second select is intentional, giving six dispatches.
func LaunchApplicationA(keyDelay, settle time.Duration) Macro {
	return Macro{
		Name: MacroLaunchA,
		Steps: []Step{
			{Key: Home, Delay: settle},
			{Key: Home, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Select, Delay: keyDelay},
			{Key: Select, Delay: keyDelay},
		},
	}
}

// LaunchApplicationB primes the home screen, moves right four times and
// selects.
func LaunchApplicationB(keyDelay, settle time.Duration) Macro {
	return Macro{
		Name: MacroLaunchB,
		Steps: []Step{
			{Key: Home, Delay: settle},
			{Key: Home, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Right, Delay: keyDelay},
			{Key: Select, Delay: keyDelay},
		},
	}
}

// pacedKeys are the menu keys the receiver drops when sent back to back.
var pacedKeys = map[RemoteCode]bool{
	Up:     true,
	Down:   true,
	Left:   true,
	Right:  true,
	Select: true,
	Back:   true,
	Exit:   true,
	Home:   true,
}

// DelayFor returns the pause that follows code when sent on its own.
func DelayFor(code RemoteCode, keyDelay time.Duration) time.Duration {
	if pacedKeys[code] {
		return keyDelay
	}
	return 0
}

// ParseMacro builds a macro from key names. An entry may carry its own
// pause as "name:duration", e.g. "home:3s"; otherwise DelayFor applies.
func ParseMacro(name string, entries []string, keyDelay time.Duration) (Macro, error) {
	if name == "" {
		return Macro{}, fmt.Errorf("%w: macro name is required", ErrConfiguration)
	}
	if len(entries) == 0 {
		return Macro{}, fmt.Errorf("%w: macro %s has no steps", ErrConfiguration, name)
	}

	steps := make([]Step, 0, len(entries))
	for _, entry := range entries {
		key, pause, hasPause := strings.Cut(entry, ":")
		code, err := ParseKey(key)
		if err != nil {
			return Macro{}, fmt.Errorf("%w: macro %s: %v", ErrConfiguration, name, err)
		}

		delay := DelayFor(code, keyDelay)
		if hasPause {
			delay, err = time.ParseDuration(strings.TrimSpace(pause))
			if err != nil || delay < 0 {
				return Macro{}, fmt.Errorf("%w: macro %s: invalid pause %q", ErrConfiguration, name, pause)
			}
		}
		steps = append(steps, Step{Key: code, Delay: delay})
	}

	return Macro{Name: name, Steps: steps}, nil
}
