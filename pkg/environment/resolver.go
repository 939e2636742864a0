package environment

import (
	"strings"
	"sync"

	"code.cloudfoundry.org/lager/v3"
	"github.com/sethvargo/go-envconfig"

	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"
)

const (
	FunctionNameEnvVar = "AWS_LAMBDA_FUNCTION_NAME"
	EnvironmentEnvVar  = "LEO_ENVIRONMENT"
	NodeEnvEnvVar      = "NODE_ENV"

	ServiceName = "rstreams"
	DefaultIID  = "0"
)

// BotRecord is the bot data attached to the registry by the invoking SDK.
type BotRecord struct {
	ID   string `json:"id"`
	IID  string `json:"iid"`
	Tags string `json:"tags"`
}

// SDKConfig is the part of the rstreams SDK configuration that names the bus.
type SDKConfig struct {
	LeoCron   string `json:"LeoCron"`
	Resources *struct {
		LeoCron string `json:"LeoCron"`
	} `json:"resources"`
}

func (c *SDKConfig) leoCron() string {
	if c == nil {
		return ""
	}
	if c.LeoCron != "" {
		return c.LeoCron
	}
	if c.Resources != nil {
		return c.Resources.LeoCron
	}
	return ""
}

// Registry is the process-wide bot registry populated by the host SDK.
type Registry struct {
	ID    string
	Event *BotRecord
	Cron  *BotRecord

	// SDKConfiguration is registry.context.sdk.configuration.
	SDKConfiguration *SDKConfig
}

type bot struct {
	id         string
	iid        string
	tags       string
	lambdaName string
}

// Resolver derives the default metric tags from the process environment.
type Resolver struct {
	env    envconfig.Lookuper
	bus    *BusCache
	shapes *workflowShapes
	logger lager.Logger

	mu        sync.RWMutex
	registry  *Registry
	sdkConfig *SDKConfig
}

// Default is the resolver for the running process.
var Default = NewResolver(utils.NewEnvLookuper(), NewBusCache(), lager.NewLogger("rstreams-metrics"))

// NewResolver ...
func NewResolver(env envconfig.Lookuper, bus *BusCache, logger lager.Logger) *Resolver {
	return &Resolver{
		env:    env,
		bus:    bus,
		shapes: newWorkflowShapes(),
		logger: logger.Session("environment"),
	}
}

// SetRegistry replaces the registry. A nil registry clears it.
func (r *Resolver) SetRegistry(registry *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry = registry
}

// SetSDKConfig sets the global SDK configuration consulted for the bus.
func (r *Resolver) SetSDKConfig(cfg *SDKConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sdkConfig = cfg
}

// ClearBusConfig forgets the memoized bus so the next read resolves it again.
func (r *Resolver) ClearBusConfig() {
	r.bus.Reset()
}

// DefaultTags resolves the tags every metric is sent with.
func (r *Resolver) DefaultTags() metrics.Tags {
	r.mu.RLock()
	registry := r.registry
	sdkConfig := r.sdkConfig
	r.mu.RUnlock()

	b := r.getBot(registry)
	botTags := r.getBotTags(b)
	bus := r.bus.Get(func() *string {
		return r.resolveBus(registry, sdkConfig)
	})
	environment := r.getEnvironment(bus)
	workflow := determineWorkflow(b, environment, r.shapes)

	tags := metrics.Tags{"workflow": nil}
	if workflow != "" {
		tags["workflow"] = metrics.Single(strings.ToLower(workflow))
	}
	for key, values := range botTags {
		tags[key] = values
	}
	tags["bot"] = optional(b.id)
	tags["environment"] = optional(environment)
	tags["bus"] = nil
	if bus != nil {
		tags["bus"] = metrics.Single(*bus)
	}
	tags["iid"] = optional(b.iid)
	tags["service"] = metrics.Single(ServiceName)

	return tags
}

func (r *Resolver) functionName() string {
	return utils.GetEnvValue(r.env, FunctionNameEnvVar, "")
}

func (r *Resolver) getBot(registry *Registry) bot {
	b := bot{
		id:         r.functionName(),
		iid:        DefaultIID,
		lambdaName: r.functionName(),
	}
	if registry == nil {
		return b
	}
	if registry.ID != "" {
		b.id = registry.ID
	}
	for _, record := range []*BotRecord{registry.Event, registry.Cron} {
		if record == nil {
			continue
		}
		if record.ID != "" {
			b.id = record.ID
		}
		if record.IID != "" {
			b.iid = record.IID
		}
		if record.Tags != "" {
			b.tags = record.Tags
		}
	}
	return b
}

func (r *Resolver) getBotTags(b bot) metrics.Tags {
	tags := parseBotTags(b.tags)

	if _, ok := tags["app"]; !ok {
		if app := inferApp(r.functionName()); app != "" {
			tags["app"] = metrics.Single(app)
		}
	}
	return tags
}

func (r *Resolver) getEnvironment(bus *string) string {
	env := utils.FirstNonEmpty(r.env, EnvironmentEnvVar, NodeEnvEnvVar)

	if env == "" {
		env = matchEnvironment(r.functionName())
	}
	if env == "" && bus != nil {
		env = matchEnvironment(*bus)
	}
	return env
}

func optional(value string) []string {
	if value == "" {
		return nil
	}
	return metrics.Single(value)
}
