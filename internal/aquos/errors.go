package aquos

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks by callers.
	ErrTransport         = errors.New("aquos: transport failure")
	ErrMalformedResponse = errors.New("aquos: malformed response")
	ErrDiscovery         = errors.New("aquos: discovery failed")
	ErrUnknownIdentifier = errors.New("aquos: unknown identifier")
	ErrConfiguration     = errors.New("aquos: invalid configuration")
	ErrUninitialized     = errors.New("aquos: session not initialized")
	ErrUnknownMacro      = errors.New("aquos: unknown macro")
)

// TransportError is returned for network failures and non-2xx responses.
// The transport never retries.
type TransportError struct {
	Op     string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("aquos: %s %s", e.Op, e.URL)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// DiscoveryStage names the startup step that failed.
type DiscoveryStage string

const (
	StageDescription DiscoveryStage = "description"
	StageChannels    DiscoveryStage = "channels"
	StageRegistry    DiscoveryStage = "registry"
)

// DiscoveryError wraps a transport or decode failure during session setup.
type DiscoveryError struct {
	Stage DiscoveryStage
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("aquos: discovery (%s): %v", e.Stage, e.Err)
}

func (e *DiscoveryError) Unwrap() []error {
	return []error{ErrDiscovery, e.Err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
