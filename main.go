package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/emitter"
	"github.com/alphagov/paas-rstreams-metrics/pkg/environment"
	"github.com/alphagov/paas-rstreams-metrics/pkg/pump"
	"github.com/alphagov/paas-rstreams-metrics/pkg/reporter"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"
)

var (
	configFilePath   string
	useStdoutEmitter bool
	dontSendMetrics  bool
	logLevelOverride string
	endTimeout       time.Duration

	logLevels = map[string]lager.LogLevel{
		"DEBUG": lager.DEBUG,
		"INFO":  lager.INFO,
		"ERROR": lager.ERROR,
		"FATAL": lager.FATAL,
	}
)

func init() {
	flag.StringVar(&configFilePath, "config", "", "Location of the config file")
	flag.BoolVar(&useStdoutEmitter, "stdoutEmitter", false, "Also print metrics to stdout")
	flag.BoolVar(&dontSendMetrics, "dontSend", false, "Resolve reporters but do not send any metrics")
	flag.StringVar(&logLevelOverride, "logLevel", "", "Override the log level from the config file")
	flag.DurationVar(&endTimeout, "endTimeout", 30*time.Second, "How long to wait for reporters to flush on exit")
}

var logger = lager.NewLogger("rstreams-metrics")

func initLogger(logLevel string) lager.Logger {
	laggerLogLevel, ok := logLevels[strings.ToUpper(logLevel)]
	if !ok {
		log.Fatal("Invalid log level: ", logLevel)
	}

	logger.RegisterSink(lager.NewWriterSink(os.Stdout, laggerLogLevel))

	return logger
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal(fmt.Sprintf("Error loading config file: '%s'. ", configFilePath), err)
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	initLogger(cfg.LogLevel)

	env := utils.NewEnvLookuper()
	region := utils.GetEnvValue(env, emitter.RegionEnvVar, emitter.DefaultRegion)
	awsSession := session.Must(session.NewSession(aws.NewConfig().WithRegion(region)))

	setup := reporter.SecretSetup(config.NewSecretSource(
		secretsmanager.New(awsSession),
		cfg.SecretID,
		logger,
	))
	if cfg.Reporters != nil {
		setup = reporter.ConfigSetup(*cfg.Reporters)
	}

	resolver := environment.NewResolver(env, environment.NewBusCache(), logger)
	dynamicReporter := reporter.New(
		withFlags(setup),
		emitter.DefaultFactories(awsSession, env, os.Stdout, logger),
		resolver,
		logger,
	)

	metricsPump := pump.NewPump(dynamicReporter, os.Stdin, endTimeout, logger.Session("pump"))

	monitor := ifrit.Invoke(sigmon.New(metricsPump))
	err = <-monitor.Wait()

	if err != nil {
		logger.Error("pump-stopped-with-error", err)
		os.Exit(1)
	}
}

// withFlags applies -stdoutEmitter and -dontSend to whatever setup resolves,
// including a failed one.
func withFlags(setup reporter.SetupFunc) reporter.SetupFunc {
	return func(ctx context.Context) (reporter.Setup, error) {
		result, err := setup(ctx)
		if err != nil {
			logger.Error("resolving-reporter-configs", err)
			result = reporter.Setup{}
		}
		if result.Reporters != nil {
			return result, nil
		}

		configs := config.ReporterConfigs{}
		if result.Configs != nil {
			configs = *result.Configs
		}
		if useStdoutEmitter && configs.Stdout == nil {
			configs.Stdout = &config.StdoutConfig{}
		}
		configs.DontSendMetrics = configs.DontSendMetrics || dontSendMetrics
		result.Configs = &configs
		return result, nil
	}
}
