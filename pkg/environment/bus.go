package environment

import (
	"encoding/json"
	"strings"
	"sync"

	"code.cloudfoundry.org/lager/v3"
)

const busSeparator = "-LeoCron-"

// BusConfigEnvVars are checked in order for a JSON encoded SDK configuration.
var BusConfigEnvVars = []string{
	"RSTREAMS_CONFIG",
	"leosdk",
	"leo_sdk",
	"leo-sdk",
	"LEOSDK",
	"LEO_SDK",
	"LEO-SDK",
}

// BusCache memoizes the bus name. A resolved nil means no bus is configured,
// which is distinct from not yet resolved.
type BusCache struct {
	mu       sync.Mutex
	resolved bool
	bus      *string
}

func NewBusCache() *BusCache {
	return &BusCache{}
}

// Get returns the cached bus, calling resolve only on the first read after
// construction or Reset.
func (c *BusCache) Get(resolve func() *string) *string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.resolved {
		c.bus = resolve()
		c.resolved = true
	}
	return c.bus
}

// Resolved reports whether the bus has been resolved since the last Reset.
func (c *BusCache) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

func (c *BusCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = false
	c.bus = nil
}

func (r *Resolver) resolveBus(registry *Registry, sdkConfig *SDKConfig) *string {
	candidates := []*SDKConfig{r.envSDKConfig(), sdkConfig}
	if registry != nil {
		candidates = append(candidates, registry.SDKConfiguration)
	}

	for _, candidate := range candidates {
		if leoCron := candidate.leoCron(); leoCron != "" {
			bus := strings.SplitN(leoCron, busSeparator, 2)[0]
			return &bus
		}
	}
	return nil
}

func (r *Resolver) envSDKConfig() *SDKConfig {
	var raw string
	for _, key := range BusConfigEnvVars {
		if val, ok := r.env.Lookup(key); ok && val != "" {
			raw = val
			break
		}
	}
	if raw == "" {
		return nil
	}

	var cfg SDKConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		r.logger.Info("skipping-unparseable-bus-config", lager.Data{"error": err.Error()})
		return nil
	}
	return &cfg
}
