package aquos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"aquos/internal/aquos"

	"github.com/stretchr/testify/require"
)

type span struct {
	action aquos.Action
	start  time.Time
	end    time.Time
}

// recordingTransport wraps the simulator and records the wall-clock span
// of every POST, flagging any two that overlap.
type recordingTransport struct {
	*aquos.Simulator

	latency   time.Duration
	getErr    error
	statusErr error

	mu         sync.Mutex
	spans      []span
	inFlight   int
	overlapped bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{Simulator: aquos.NewSimulator()}
}

func (r *recordingTransport) Get(ctx context.Context, url string) ([]byte, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Simulator.Get(ctx, url)
}

func (r *recordingTransport) Post(ctx context.Context, url string, action aquos.Action, body []byte) ([]byte, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > 1 {
		r.overlapped = true
	}
	start := time.Now()
	r.mu.Unlock()

	if r.latency > 0 {
		time.Sleep(r.latency)
	}

	var (
		resp []byte
		err  error
	)
	if action == aquos.ActionGetStatus && r.statusErr != nil {
		err = r.statusErr
	} else {
		resp, err = r.Simulator.Post(ctx, url, action, body)
	}

	r.mu.Lock()
	r.inFlight--
	r.spans = append(r.spans, span{action: action, start: start, end: time.Now()})
	r.mu.Unlock()

	return resp, err
}

func (r *recordingTransport) controlSpans() []span {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []span
	for _, s := range r.spans {
		if s.action == aquos.ActionSetControl {
			out = append(out, s)
		}
	}
	return out
}

func testOptions() aquos.Options {
	opts := aquos.DefaultOptions()
	opts.Name = "test-tv"
	opts.CommandDelay = 5 * time.Millisecond
	opts.SettleDelay = 20 * time.Millisecond
	return opts
}

func newSession(t *testing.T, transport aquos.Transport, opts aquos.Options) *aquos.Session {
	t.Helper()
	session, err := aquos.NewSession(aquos.Endpoint{Host: "192.168.1.20", ControlPort: 10002, DescriptionPort: 8008}, transport, opts)
	require.NoError(t, err)
	return session
}

func newReadySession(t *testing.T, opts aquos.Options) (*aquos.Session, *recordingTransport) {
	t.Helper()
	transport := newRecordingTransport()
	session := newSession(t, transport, opts)
	require.NoError(t, session.Setup(context.Background()))
	return session, transport
}
