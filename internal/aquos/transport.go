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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"aquos/internal/logger"

	"github.com/rs/zerolog"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 4 << 20
	maxErrorBodyBytes  = 512
)

// Transport carries encoded requests to a television. Implementations
// must not retry.
type Transport interface {
	Post(ctx context.Context, url string, action Action, body []byte) ([]byte, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPTransport is the Transport used against real hardware.
type HTTPTransport struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPTransport creates a transport. A zero timeout selects the default.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.For("transport"),
	}
}

// Post sends a SOAP envelope with the headers the control service expects.
func (t *HTTPTransport) Post(ctx context.Context, url string, action Action, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "POST", URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", action.SOAPAction())

	t.logger.Debug().
		Str("url", url).
		Str("action", string(action)).
		Int("bytes", len(body)).
		Msg("Sending SOAP request")

	return t.do(req)
}

// Get fetches a document, used for the device description.
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Op: "GET", URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	t.logger.Debug().
		Str("url", url).
		Msg("Fetching document")

	return t.do(req)
}

func (t *HTTPTransport) do(req *http.Request) ([]byte, error) {
	url := req.URL.String()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: req.Method, URL: url, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		t.logger.Error().
			Str("url", url).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Request failed")
		return nil, &TransportError{Op: req.Method, URL: url, Status: resp.StatusCode, Body: string(snippet)}
	}

	t.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Msg("Request successful")

	return body, nil
}
