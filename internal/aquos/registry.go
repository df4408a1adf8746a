package aquos

import (
	"fmt"
	"strings"
)

// ActionKind is the shape of an ActionDescriptor.
type ActionKind string

const (
	KindTuner       ActionKind = "tuner"
	KindApplication ActionKind = "application"
	KindHDMI        ActionKind = "hdmi"
)

// ActionDescriptor is what an identifier selects. Exactly one of Channel,
// Application or HDMISlot is meaningful, chosen by Kind.
type ActionDescriptor struct {
	Kind        ActionKind `json:"kind"`
	Channel     Channel    `json:"channel,omitzero"`
	Application string     `json:"application,omitempty"`
	HDMISlot    int        `json:"hdmi_slot,omitempty"`
}

// Label is the name shown to users for the input.
func (d ActionDescriptor) Label() string {
	switch d.Kind {
	case KindApplication:
		return d.Application + " App"
	case KindTuner:
		return d.Channel.DisplayName()
	case KindHDMI:
		return fmt.Sprintf("HDMI Input %d", d.HDMISlot)
	}
	return ""
}

// Registry maps dense identifiers starting at 0 to action descriptors:
// applications in configured order, then channels in discovery order,
// then HDMI inputs 1..N. It is immutable once built.
type Registry struct {
	entries []ActionDescriptor
}

// BuildRegistry assigns identifiers. The same inputs always produce the
// same assignment.
func BuildRegistry(applications []string, channels []Channel, hdmiInputs int) (*Registry, error) {
	if hdmiInputs < 0 || hdmiInputs > MaxHDMIInputs {
		return nil, fmt.Errorf("%w: hdmi input count %d out of range 0-%d", ErrConfiguration, hdmiInputs, MaxHDMIInputs)
	}

	seen := make(map[string]struct{}, len(applications))
	entries := make([]ActionDescriptor, 0, len(applications)+len(channels)+hdmiInputs)

	for _, name := range applications {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty application name", ErrConfiguration)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate application %q", ErrConfiguration, name)
		}
		seen[name] = struct{}{}
		entries = append(entries, ActionDescriptor{Kind: KindApplication, Application: name})
	}

	for _, ch := range channels {
		entries = append(entries, ActionDescriptor{Kind: KindTuner, Channel: ch})
	}

	for slot := 1; slot <= hdmiInputs; slot++ {
		entries = append(entries, ActionDescriptor{Kind: KindHDMI, HDMISlot: slot})
	}

	if len(entries) >= NoIdentifier {
		return nil, fmt.Errorf("%w: too many inputs (%d)", ErrConfiguration, len(entries))
	}

	return &Registry{entries: entries}, nil
}

// Resolve returns the descriptor assigned to id.
func (r *Registry) Resolve(id int) (ActionDescriptor, error) {
	if id < 0 || id >= len(r.entries) {
		return ActionDescriptor{}, fmt.Errorf("%w: %d", ErrUnknownIdentifier, id)
	}
	return r.entries[id], nil
}

// Len is the number of assigned identifiers.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the descriptors indexed by identifier.
func (r *Registry) Entries() []ActionDescriptor {
	out := make([]ActionDescriptor, len(r.entries))
	copy(out, r.entries)
	return out
}
