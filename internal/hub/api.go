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

package hub

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"aquos/internal/aquos"
	"aquos/internal/device"
	"aquos/internal/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	NonceHeader    = "X-Nonce"
	maxActionBytes = 64 << 10
)

// APIServer exposes the managed televisions over HTTP
type APIServer struct {
	manager  *DeviceManager
	tokens   *TokenService
	rate     rate.Limit
	limiters map[string]*rate.Limiter
	limitMu  sync.Mutex
	logger   zerolog.Logger
	started  time.Time
}

// NewAPIServer creates an API server. Authentication is enabled when the
// hub has a JWT secret and rate limiting when it has a rate limit.
func NewAPIServer(manager *DeviceManager, config HubConfig) *APIServer {
	api := &APIServer{
		manager:  manager,
		rate:     rate.Limit(config.RateLimit),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.For("api"),
		started:  time.Now(),
	}
	if config.JWTSecret != "" {
		api.tokens = NewTokenService(config.JWTSecret, config.ID)
	}
	return api
}

// Handler builds the router
func (api *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(api.loggingMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/health", api.handleHealth).Methods(http.MethodGet)

	devices := apiRouter.PathPrefix("/devices").Subrouter()
	if api.tokens != nil {
		devices.Use(api.tokens.RequireAuth)
	}
	devices.HandleFunc("", api.handleListDevices).Methods(http.MethodGet)
	devices.HandleFunc("/{device_id}", api.handleGetDevice).Methods(http.MethodGet)
	devices.HandleFunc("/{device_id}/inputs", api.handleInputs).Methods(http.MethodGet)
	devices.HandleFunc("/{device_id}/channels", api.handleChannels).Methods(http.MethodGet)
	devices.HandleFunc("/{device_id}/state", api.handleState).Methods(http.MethodGet)
	devices.HandleFunc("/{device_id}/actions", api.handleActionLog).Methods(http.MethodGet)
	devices.Handle("/{device_id}/action", api.rateLimit(http.HandlerFunc(api.handleAction))).Methods(http.MethodPost)
	devices.Handle("/{device_id}/discover", api.rateLimit(http.HandlerFunc(api.handleDiscover))).Methods(http.MethodPost)

	return router
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		api.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// rateLimit applies a token bucket per device
func (api *APIServer) rateLimit(next http.Handler) http.Handler {
	if api.rate <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.limiter(mux.Vars(r)["device_id"]).Allow() {
			w.Header().Set("Retry-After", "1")
			sendError(w, http.StatusTooManyRequests, "Too many requests for this device")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *APIServer) limiter(deviceID string) *rate.Limiter {
	api.limitMu.Lock()
	defer api.limitMu.Unlock()

	l, ok := api.limiters[deviceID]
	if !ok {
		burst := int(math.Ceil(float64(api.rate)))
		l = rate.NewLimiter(api.rate, max(burst, 1))
		api.limiters[deviceID] = l
	}
	return l
}

// Response helpers
func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusFor maps a failed action to an HTTP status
func statusFor(code device.ErrorCode) int {
	switch code {
	case "":
		return http.StatusOK
	case device.CodeInvalidRequest:
		return http.StatusBadRequest
	case device.CodeUninitialized:
		return http.StatusServiceUnavailable
	case device.CodeUnknownIdentifier:
		return http.StatusNotFound
	case device.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *APIServer) remote(w http.ResponseWriter, r *http.Request) (*aquos.Remote, bool) {
	remote, err := api.manager.GetDevice(mux.Vars(r)["device_id"])
	if err != nil {
		sendError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return remote, true
}

func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := 0
	infos := api.manager.GetAllDeviceInfo()
	for _, info := range infos {
		if info.Ready {
			ready++
		}
	}

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"devices":       len(infos),
		"ready_devices": ready,
		"uptime":        time.Since(api.started).Round(time.Second).String(),
		"nonce_cache":   api.manager.GetNonceStats(),
	})
}

func (api *APIServer) handleListDevices(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, api.manager.GetAllDeviceInfo())
}

func (api *APIServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	remote, ok := api.remote(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"info":   remote.GetDeviceInfo(),
		"state":  remote.Session().State(),
		"macros": remote.Session().MacroNames(),
	})
}

func (api *APIServer) handleInputs(w http.ResponseWriter, r *http.Request) {
	remote, ok := api.remote(w, r)
	if !ok {
		return
	}
	registry := remote.Session().Registry()
	if registry == nil {
		sendError(w, http.StatusServiceUnavailable, aquos.ErrUninitialized.Error())
		return
	}
	sendJSON(w, http.StatusOK, aquos.Inputs(registry))
}

func (api *APIServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	remote, ok := api.remote(w, r)
	if !ok {
		return
	}
	if !remote.Session().Ready() {
		sendError(w, http.StatusServiceUnavailable, aquos.ErrUninitialized.Error())
		return
	}
	sendJSON(w, http.StatusOK, remote.Session().Channels())
}

func (api *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	remote, ok := api.remote(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, remote.Session().State())
}

func (api *APIServer) handleActionLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := api.manager.RecentActions(r.Context(), mux.Vars(r)["device_id"], limit)
	if errors.Is(err, ErrDeviceNotFound) {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []ActionRecord{}
	}
	sendJSON(w, http.StatusOK, records)
}

func (api *APIServer) handleAction(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBytes))
	if err != nil {
		sendError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	response, err := api.manager.ProcessDeviceActionWithNonce(r.Context(), deviceID, r.Header.Get(NonceHeader), body)
	if errors.Is(err, ErrDeviceNotFound) {
		sendError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sendJSON(w, statusFor(response.Code), response)
}

func (api *APIServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]

	err := api.manager.Rediscover(r.Context(), deviceID)
	switch {
	case err == nil:
		info, _ := api.manager.GetDeviceInfo(deviceID)
		sendJSON(w, http.StatusOK, info)
	case errors.Is(err, ErrDeviceNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, aquos.ErrConfiguration):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		sendError(w, http.StatusBadGateway, err.Error())
	}
}
