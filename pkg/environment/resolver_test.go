package environment_test

import (
	"code.cloudfoundry.org/lager/v3/lagertest"

	"github.com/alphagov/paas-rstreams-metrics/pkg/environment"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mapEnv reads the map on every lookup so tests can change it between lookups.
type mapEnv map[string]string

func (m mapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func withLeoCron(leoCron string) *environment.SDKConfig {
	cfg := &environment.SDKConfig{}
	cfg.Resources = &struct {
		LeoCron string `json:"LeoCron"`
	}{LeoCron: leoCron}
	return cfg
}

var _ = Describe("Resolver", func() {
	var (
		env      map[string]string
		busCache *environment.BusCache
		resolver *environment.Resolver
	)

	BeforeEach(func() {
		env = map[string]string{}
		busCache = environment.NewBusCache()
		resolver = environment.NewResolver(
			utils.WithMetricPrefix(mapEnv(env)),
			busCache,
			lagertest.NewTestLogger("environment"),
		)
	})

	It("resolves nothing from an empty environment", func() {
		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         nil,
			"bus":         nil,
			"environment": nil,
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    nil,
		}))
	})

	It("derives bot, environment and workflow from the function name", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-fn-name-test"

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         {"some-lambda-fn-name-test"},
			"bus":         nil,
			"environment": {"test"},
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    {"some-lambda-fn-name"},
		}))
	})

	It("reads the bus from the config env var", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-prod-fn-name"
		env["RSTREAMS_CONFIG"] = `{"LeoCron":"SomeBusName-LeoCron-OtherStuff"}`

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"app":         {"some-lambda"},
			"bot":         {"some-lambda-prod-fn-name"},
			"bus":         {"SomeBusName"},
			"environment": {"prod"},
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    {"some-lambda"},
		}))
	})

	It("reads the bus config from an alias with the metrics prefix", func() {
		env[utils.MetricEnvPrefix+"LEO_SDK"] = `{"resources":{"LeoCron":"AliasBus-LeoCron-X"}}`

		Expect(resolver.DefaultTags()["bus"]).To(Equal([]string{"AliasBus"}))
	})

	It("reads the bus from the global SDK config", func() {
		resolver.SetSDKConfig(withLeoCron("SomeOtherBusName-LeoCron-OtherStuff"))
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-prod-fn-name"

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"app":         {"some-lambda"},
			"bot":         {"some-lambda-prod-fn-name"},
			"bus":         {"SomeOtherBusName"},
			"environment": {"prod"},
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    {"some-lambda"},
		}))
	})

	It("reads the bus from the registry sdk configuration", func() {
		resolver.SetRegistry(&environment.Registry{
			SDKConfiguration: withLeoCron("SomeOtherOtherBusName-LeoCron-OtherStuff"),
		})
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-prod-fn-name"

		tags := resolver.DefaultTags()
		Expect(tags["bus"]).To(Equal([]string{"SomeOtherOtherBusName"}))
		Expect(tags["app"]).To(Equal([]string{"some-lambda"}))
	})

	It("skips malformed bus JSON and keeps looking", func() {
		env["RSTREAMS_CONFIG"] = `{not json`
		resolver.SetSDKConfig(withLeoCron("FallbackBus-LeoCron-X"))

		Expect(resolver.DefaultTags()["bus"]).To(Equal([]string{"FallbackBus"}))
	})

	It("takes the environment from the bus name, keeping its case", func() {
		resolver.SetRegistry(&environment.Registry{
			SDKConfiguration: withLeoCron("ProdBus-LeoCron-OtherStuff"),
		})

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         nil,
			"bus":         {"ProdBus"},
			"environment": {"Prod"},
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    nil,
		}))
	})

	It("leaves the environment empty when the bus has no stage", func() {
		resolver.SetRegistry(&environment.Registry{
			SDKConfiguration: withLeoCron("Bus-LeoCron-OtherStuff"),
		})

		tags := resolver.DefaultTags()
		Expect(tags["bus"]).To(Equal([]string{"Bus"}))
		Expect(tags["environment"]).To(BeNil())
	})

	It("prefers the explicit environment variables", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-prod-fn-name"
		env["NODE_ENV"] = "staging"
		Expect(resolver.DefaultTags()["environment"]).To(Equal([]string{"staging"}))

		env["LEO_ENVIRONMENT"] = "qa"
		Expect(resolver.DefaultTags()["environment"]).To(Equal([]string{"qa"}))
	})

	It("memoizes the bus until cleared", func() {
		resolver.SetRegistry(&environment.Registry{
			SDKConfiguration: withLeoCron("ProdBus-LeoCron-OtherStuff"),
		})
		Expect(resolver.DefaultTags()["bus"]).To(Equal([]string{"ProdBus"}))

		resolver.SetRegistry(&environment.Registry{
			SDKConfiguration: withLeoCron("OtherBus-LeoCron-OtherStuff"),
		})
		Expect(resolver.DefaultTags()["bus"]).To(Equal([]string{"ProdBus"}))
		Expect(busCache.Resolved()).To(BeTrue())

		resolver.ClearBusConfig()
		Expect(busCache.Resolved()).To(BeFalse())
		Expect(resolver.DefaultTags()["bus"]).To(Equal([]string{"OtherBus"}))
	})

	It("memoizes a missing bus", func() {
		Expect(resolver.DefaultTags()["bus"]).To(BeNil())

		env["RSTREAMS_CONFIG"] = `{"LeoCron":"LateBus-LeoCron-X"}`
		Expect(resolver.DefaultTags()["bus"]).To(BeNil())
	})

	It("falls back to the leading bot id token without an environment", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-fn-name"

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         {"some-lambda-fn-name"},
			"bus":         nil,
			"environment": nil,
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    {"some"},
		}))
	})

	It("spreads the bot tags", func() {
		resolver.SetRegistry(&environment.Registry{
			Cron: &environment.BotRecord{Tags: "some:tagValue,other:tag2,some:tagValue3"},
		})

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         nil,
			"bus":         nil,
			"environment": nil,
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    nil,
			"other":       {"tag2"},
			"some":        {"tagValue", "tagValue3"},
		}))
	})

	It("uses the workflow bot tag", func() {
		resolver.SetRegistry(&environment.Registry{
			Cron: &environment.BotRecord{Tags: "workflow:abc,tag2"},
		})

		Expect(resolver.DefaultTags()).To(Equal(metrics.Tags{
			"bot":         nil,
			"bus":         nil,
			"environment": nil,
			"iid":         {"0"},
			"service":     {"rstreams"},
			"workflow":    {"abc"},
		}))
	})

	It("keeps an explicit app bot tag over the inferred one", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "some-lambda-prod-fn-name"
		resolver.SetRegistry(&environment.Registry{
			Cron: &environment.BotRecord{Tags: "app:mine"},
		})

		Expect(resolver.DefaultTags()["app"]).To(Equal([]string{"mine"}))
	})

	It("lets the cron record override the event record and the registry id", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "fn-name"
		resolver.SetRegistry(&environment.Registry{
			ID:    "registry-bot",
			Event: &environment.BotRecord{ID: "event-bot", IID: "7", Tags: "team:event"},
			Cron:  &environment.BotRecord{ID: "cron-bot", Tags: "team:cron"},
		})

		tags := resolver.DefaultTags()
		Expect(tags["bot"]).To(Equal([]string{"cron-bot"}))
		Expect(tags["iid"]).To(Equal([]string{"7"}))
		Expect(tags["team"]).To(Equal([]string{"cron"}))
	})

	It("uses the registry id before the function name", func() {
		env["AWS_LAMBDA_FUNCTION_NAME"] = "fn-name"
		resolver.SetRegistry(&environment.Registry{ID: "Registry_Bot-dev"})

		tags := resolver.DefaultTags()
		Expect(tags["bot"]).To(Equal([]string{"Registry_Bot-dev"}))
		Expect(tags["environment"]).To(BeNil())
		Expect(tags["workflow"]).To(Equal([]string{"registry"}))
	})
})
