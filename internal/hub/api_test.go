package hub_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aquos/internal/aquos"
	"aquos/internal/device"
	"aquos/internal/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, config *hub.Config, dm *hub.DeviceManager) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(hub.NewAPIServer(dm, config.Hub).Handler())
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, method, url, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestAPIReadEndpoints(t *testing.T) {
	config := testConfig()
	server := newAPI(t, config, newManager(t, config, newStore(t)))

	t.Run("health", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/health", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var health map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &health))
		assert.Equal(t, "ok", health["status"])
		assert.EqualValues(t, 1, health["ready_devices"])
	})

	t.Run("devices", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var devices map[string]device.DeviceInfo
		require.NoError(t, json.Unmarshal(body, &devices))
		require.Contains(t, devices, "tv")
		assert.Equal(t, "4T-C50BN1", devices["tv"].Model)
	})

	t.Run("inputs", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/inputs", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var inputs []aquos.Input
		require.NoError(t, json.Unmarshal(body, &inputs))
		require.Len(t, inputs, 11)
		assert.Equal(t, "Netflix App", inputs[0].Label)
		assert.Equal(t, aquos.KindTuner, inputs[2].Kind)
		assert.True(t, inputs[4].Hidden)
		assert.Equal(t, "HDMI Input 1", inputs[5].Label)
	})

	t.Run("channels", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/channels", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var channels []aquos.Channel
		require.NoError(t, json.Unmarshal(body, &channels))
		assert.Len(t, channels, 3)
	})

	t.Run("state", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/state", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var state aquos.State
		require.NoError(t, json.Unmarshal(body, &state))
		assert.Equal(t, aquos.NoIdentifier, state.ActiveIdentifier)
	})

	t.Run("unknown device", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/kitchen", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/metrics", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "go_goroutines")
	})
}

func TestAPIActionStatus(t *testing.T) {
	config := testConfig()
	server := newAPI(t, config, newManager(t, config, newStore(t)))

	tests := []struct {
		name   string
		device string
		body   string
		status int
		code   device.ErrorCode
	}{
		{"power on", "tv", `{"type":"power","action":"on"}`, http.StatusOK, ""},
		{"select channel", "tv", `{"type":"input","action":"select","parameters":{"identifier":2}}`, http.StatusOK, ""},
		{"unknown identifier", "tv", `{"type":"input","action":"select","parameters":{"identifier":99}}`, http.StatusNotFound, device.CodeUnknownIdentifier},
		{"unknown macro", "tv", `{"type":"macro","action":"launch-z"}`, http.StatusNotFound, device.CodeUnknownIdentifier},
		{"invalid json", "tv", `{"type":`, http.StatusBadRequest, device.CodeInvalidRequest},
		{"missing parameter", "tv", `{"type":"input","action":"select"}`, http.StatusBadRequest, device.CodeInvalidRequest},
		{"unknown device", "kitchen", `{"type":"state"}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, http.MethodPost, server.URL+"/api/v1/devices/"+tt.device+"/action", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			if tt.code != "" {
				var response device.ActionResponse
				require.NoError(t, json.Unmarshal(body, &response))
				assert.Equal(t, tt.code, response.Code)
			}
		})
	}

	t.Run("action log", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/actions?limit=2", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var records []hub.ActionRecord
		require.NoError(t, json.Unmarshal(body, &records))
		assert.Len(t, records, 2)
	})
}

func TestAPIUninitializedDevice(t *testing.T) {
	config := testConfig()
	dm := hub.NewDeviceManager(config, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, dm.Initialize(ctx, testMode()))
	defer dm.Shutdown()

	server := newAPI(t, config, dm)

	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/inputs", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, server.URL+"/api/v1/devices/tv/action", `{"type":"remote","action":"home"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, server.URL+"/api/v1/devices/tv/discover", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/inputs", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPINonceReplay(t *testing.T) {
	config := testConfig()
	server := newAPI(t, config, newManager(t, config, newStore(t)))

	header := http.Header{hub.NonceHeader: []string{hub.GenerateNonce()}}
	url := server.URL + "/api/v1/devices/tv/action"

	resp, first := doRequest(t, http.MethodPost, url, `{"type":"mute","action":"toggle"}`, header)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, second := doRequest(t, http.MethodPost, url, `{"type":"mute","action":"toggle"}`, header)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, string(first), string(second))

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/v1/devices/tv/state", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state aquos.State
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Equal(t, aquos.MuteStateOn, state.Mute, "the replay must not toggle again")
}

func TestAPIRateLimit(t *testing.T) {
	config := testConfig()
	config.Hub.RateLimit = 1
	server := newAPI(t, config, newManager(t, config, nil))

	url := server.URL + "/api/v1/devices/tv/action"
	resp, _ := doRequest(t, http.MethodPost, url, `{"type":"state"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, url, `{"type":"state"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestAPIAuthentication(t *testing.T) {
	config := testConfig()
	config.Hub.JWTSecret = "0123456789abcdef0123456789abcdef"
	server := newAPI(t, config, newManager(t, config, nil))

	url := server.URL + "/api/v1/devices"

	t.Run("health stays public", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/v1/health", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, url, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := hub.NewTokenService("another-secret", config.Hub.ID).GenerateToken("alice", time.Hour)
		require.NoError(t, err)
		resp, _ := doRequest(t, http.MethodGet, url, "", http.Header{"Authorization": []string{"Bearer " + token}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := hub.NewTokenService(config.Hub.JWTSecret, config.Hub.ID).GenerateToken("alice", -time.Minute)
		require.NoError(t, err)
		resp, _ := doRequest(t, http.MethodGet, url, "", http.Header{"Authorization": []string{"Bearer " + token}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := hub.NewTokenService(config.Hub.JWTSecret, config.Hub.ID).GenerateToken("alice", time.Hour)
		require.NoError(t, err)
		resp, _ := doRequest(t, http.MethodGet, url, "", http.Header{"Authorization": []string{"Bearer " + token}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
