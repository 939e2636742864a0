package emitter

import (
	"context"
	"os"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/sethvargo/go-envconfig"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"
)

const (
	APIKeyEnvVar        = "DD_API_KEY"
	APIKeyKMSEnvVar     = "DD_KMS_API_KEY"
	SiteURLEnvVar       = "DD_SITE"
	LogForwardingEnvVar = "DD_FLUSH_TO_LOG"
	DontSendEnvVar      = "DD_DONT_SEND"
	DefaultSiteURL      = "datadoghq.com"

	functionNameEnvVar = "AWS_LAMBDA_FUNCTION_NAME"
)

// DataDogSettings is the effective Datadog configuration: explicit config,
// then environment, then defaults.
type DataDogSettings struct {
	APIKey          string
	APIKeyKMS       string
	SiteURL         string
	LogForwarding   bool
	DontSendMetrics bool
}

// dataDogEnv is read as plain strings so a malformed value in one variable
// cannot hide the others. Flags are on only for the exact string "true".
type dataDogEnv struct {
	APIKey        string `env:"DD_API_KEY"`
	APIKeyKMS     string `env:"DD_KMS_API_KEY"`
	SiteURL       string `env:"DD_SITE,default=datadoghq.com"`
	LogForwarding string `env:"DD_FLUSH_TO_LOG"`
	DontSend      string `env:"DD_DONT_SEND"`
}

// ResolveDataDogSettings overlays cfg on the environment. A failed
// environment lookup is reported but the explicit config is still applied.
func ResolveDataDogSettings(ctx context.Context, cfg config.DataDogConfig, dontSendMetrics bool, env envconfig.Lookuper) (DataDogSettings, error) {
	var fromEnv dataDogEnv
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &fromEnv,
		Lookuper: env,
	})

	settings := DataDogSettings{
		APIKey:          fromEnv.APIKey,
		APIKeyKMS:       fromEnv.APIKeyKMS,
		SiteURL:         fromEnv.SiteURL,
		LogForwarding:   fromEnv.LogForwarding == "true",
		DontSendMetrics: fromEnv.DontSend == "true",
	}

	if cfg.Key != "" && cfg.APIKey == "" {
		cfg.APIKey = cfg.Key
	}
	if cfg.Site != "" && cfg.SiteURL == "" {
		cfg.SiteURL = cfg.Site
	}

	if cfg.APIKey != "" {
		settings.APIKey = cfg.APIKey
	}
	if cfg.APIKeyKMS != "" {
		settings.APIKeyKMS = cfg.APIKeyKMS
	}
	if cfg.SiteURL != "" {
		settings.SiteURL = cfg.SiteURL
	}
	if settings.SiteURL == "" {
		settings.SiteURL = DefaultSiteURL
	}
	if cfg.LogForwarding != nil {
		settings.LogForwarding = *cfg.LogForwarding
	}
	settings.DontSendMetrics = settings.DontSendMetrics || dontSendMetrics

	return settings, err
}

// DataDogReporter forwards each metric straight to a Datadog listener.
type DataDogReporter struct {
	listener    Listener
	sendMetrics bool
	logger      lager.Logger
}

var _ metrics.Reporter = (*DataDogReporter)(nil)

func NewDataDogReporter(listener Listener, dontSendMetrics bool, logger lager.Logger) *DataDogReporter {
	return &DataDogReporter{
		listener:    listener,
		sendMetrics: !dontSendMetrics,
		logger:      logger.Session("datadog-reporter"),
	}
}

// DataDogFactory builds a DataDogReporter when an API key is available from
// the configs or the environment.
func DataDogFactory(session client.ConfigProvider, env envconfig.Lookuper, logger lager.Logger) Factory {
	return func(configs config.ReporterConfigs) metrics.Reporter {
		ddConfig := config.DataDogConfig{}
		if configs.DataDog != nil {
			ddConfig = *configs.DataDog
		}

		settings, err := ResolveDataDogSettings(context.Background(), ddConfig, configs.DontSendMetrics, env)
		if err != nil {
			logger.Error("reading-datadog-environment", err)
		}
		if settings.APIKey == "" && settings.APIKeyKMS == "" {
			return nil
		}

		listener, err := NewListener(settings, ListenerDeps{
			Decrypter:     NewKeyDecrypter(kms.New(session), utils.GetEnvValue(env, functionNameEnvVar, "")),
			Clock:         clock.NewClock(),
			Out:           os.Stdout,
			ExtensionPath: DefaultExtensionPath,
			StatsdAddr:    DefaultStatsdAddr,
		}, logger)
		if err != nil {
			logger.Error("creating-datadog-listener", err)
			return nil
		}

		logger.Info("activating-datadog-reporter", lager.Data{"site": settings.SiteURL})
		return NewDataDogReporter(listener, settings.DontSendMetrics, logger)
	}
}

// GetName ...
func (r *DataDogReporter) GetName() string {
	return "DataDog"
}

// Start ...
func (r *DataDogReporter) Start(ctx context.Context) error {
	return r.listener.OnStartInvocation(ctx)
}

// End ...
func (r *DataDogReporter) End(ctx context.Context) error {
	return r.listener.OnCompleteInvocation(ctx)
}

// Log ...
func (r *DataDogReporter) Log(metric metrics.Metric) {
	if !r.sendMetrics {
		return
	}

	tags := TagPairs(metric.Tags)
	r.logger.Debug("metric", lager.Data{"id": metric.ID, "value": metric.Value, "tags": tags})

	if !metric.Timestamp.IsZero() {
		r.listener.SendDistributionMetricWithDate(metric.ID, metric.Value, metric.Timestamp, false, tags...)
	} else {
		r.listener.SendDistributionMetric(metric.ID, metric.Value, false, tags...)
	}
}
