package emitter

import (
	"io"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/sethvargo/go-envconfig"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
)

// Factory builds a reporter from the configs, or returns nil when the
// reporter does not apply to them.
type Factory func(configs config.ReporterConfigs) metrics.Reporter

// DefaultFactories returns the built-in reporters in priority order.
func DefaultFactories(session client.ConfigProvider, env envconfig.Lookuper, stdout io.Writer, logger lager.Logger) []Factory {
	return []Factory{
		DataDogFactory(session, env, logger),
		CloudWatchFactory(session, env, logger),
		StdOutFactory(stdout),
	}
}
