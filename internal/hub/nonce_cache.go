package hub

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"aquos/internal/device"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultNonceCacheSize = 50
	DefaultNonceTTL       = time.Hour
)

// NonceCache remembers the response to each nonce per device so a client
// retrying a request does not press the same key twice.
type NonceCache struct {
	deviceCaches map[string]*expirable.LRU[string, *device.ActionResponse]
	mutex        sync.Mutex
	maxSize      int
	expiration   time.Duration
}

// NewNonceCache creates a new nonce cache
func NewNonceCache(maxSize int, expiration time.Duration) *NonceCache {
	if maxSize <= 0 {
		maxSize = DefaultNonceCacheSize
	}
	if expiration <= 0 {
		expiration = DefaultNonceTTL
	}

	return &NonceCache{
		deviceCaches: make(map[string]*expirable.LRU[string, *device.ActionResponse]),
		maxSize:      maxSize,
		expiration:   expiration,
	}
}

// GenerateNonce returns a nonce of the form <unix-ms>-<8 hex digits>
func GenerateNonce() string {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		n := time.Now().UnixNano()
		randomBytes = []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
	return fmt.Sprintf("%d-%x", time.Now().UnixMilli(), randomBytes)
}

func (nc *NonceCache) deviceCache(deviceID string) *expirable.LRU[string, *device.ActionResponse] {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	cache, exists := nc.deviceCaches[deviceID]
	if !exists {
		cache = expirable.NewLRU[string, *device.ActionResponse](nc.maxSize, nil, nc.expiration)
		nc.deviceCaches[deviceID] = cache
	}
	return cache
}

// CheckNonce returns the cached response for a nonce seen before
func (nc *NonceCache) CheckNonce(deviceID, nonce string) (*device.ActionResponse, bool) {
	if nonce == "" {
		return nil, false
	}
	return nc.deviceCache(deviceID).Get(nonce)
}

// StoreResponse caches the response for a nonce
func (nc *NonceCache) StoreResponse(deviceID, nonce string, response *device.ActionResponse) {
	if nonce == "" {
		return
	}
	nc.deviceCache(deviceID).Add(nonce, response)
}

// ClearDevice forgets every nonce of a device
func (nc *NonceCache) ClearDevice(deviceID string) {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	if cache, exists := nc.deviceCaches[deviceID]; exists {
		cache.Purge()
	}
}

// DeviceNonceCount returns the number of live nonces for a device
func (nc *NonceCache) DeviceNonceCount(deviceID string) int {
	nc.mutex.Lock()
	cache, exists := nc.deviceCaches[deviceID]
	nc.mutex.Unlock()

	if !exists {
		return 0
	}
	return cache.Len()
}

// GetStats returns cache statistics
func (nc *NonceCache) GetStats() map[string]interface{} {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	totalNonces := 0
	deviceStats := make(map[string]int, len(nc.deviceCaches))
	for deviceID, cache := range nc.deviceCaches {
		count := cache.Len()
		totalNonces += count
		deviceStats[deviceID] = count
	}

	return map[string]interface{}{
		"total_devices": len(nc.deviceCaches),
		"total_nonces":  totalNonces,
		"max_size":      nc.maxSize,
		"expiration":    nc.expiration.String(),
		"device_stats":  deviceStats,
	}
}

// Shutdown drops all cached responses. The per-device caches are kept
// because each one owns a cleanup goroutine that never exits.
func (nc *NonceCache) Shutdown() {
	nc.mutex.Lock()
	defer nc.mutex.Unlock()

	for _, cache := range nc.deviceCaches {
		cache.Purge()
	}
}

// ValidateNonce checks the <unix-ms>-<8 hex digits> format
func ValidateNonce(nonce string) bool {
	timestampPart, randomPart, found := strings.Cut(nonce, "-")
	if !found || strings.Contains(randomPart, "-") {
		return false
	}

	// Unix time in milliseconds has at least 13 digits.
	if len(timestampPart) < 13 {
		return false
	}
	if _, err := strconv.ParseUint(timestampPart, 10, 64); err != nil {
		return false
	}

	if len(randomPart) != 8 {
		return false
	}
	_, err := strconv.ParseUint(randomPart, 16, 32)
	return err == nil
}
