package reporter

import (
	"context"
	"io"
	"sync"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/emitter"
	"github.com/alphagov/paas-rstreams-metrics/pkg/environment"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
)

// TagSource provides the tags merged under every logged metric.
type TagSource interface {
	DefaultTags() metrics.Tags
}

// Setup is what a SetupFunc resolves to. When Reporters is non-nil it is
// used as is; otherwise every factory is run against Configs.
type Setup struct {
	Reporters []metrics.Reporter
	Configs   *config.ReporterConfigs
}

// SetupFunc resolves the reporters in the background.
type SetupFunc func(ctx context.Context) (Setup, error)

// ConfigSetup resolves to a fixed configuration.
func ConfigSetup(configs config.ReporterConfigs) SetupFunc {
	return func(context.Context) (Setup, error) {
		return Setup{Configs: &configs}, nil
	}
}

// SecretSetup resolves to the configuration stored in the secret.
func SecretSetup(source *config.SecretSource) SetupFunc {
	return func(ctx context.Context) (Setup, error) {
		configs, err := source.Fetch(ctx)
		if err != nil {
			return Setup{}, err
		}
		return Setup{Configs: configs}, nil
	}
}

// DynamicReporter fans metrics out to every reporter that applies to its
// configuration.
type DynamicReporter struct {
	factories []emitter.Factory
	tags      TagSource
	logger    lager.Logger

	ready chan struct{}

	mu        sync.Mutex
	resolved  bool
	reporters []metrics.Reporter
	queued    []metrics.Metric
}

var _ metrics.Reporter = (*DynamicReporter)(nil)

// New starts resolving setup in the background.
func New(setup SetupFunc, factories []emitter.Factory, tags TagSource, logger lager.Logger) *DynamicReporter {
	r := &DynamicReporter{
		factories: factories,
		tags:      tags,
		logger:    logger.Session("dynamic-reporter"),
		ready:     make(chan struct{}),
	}
	go r.resolve(setup)
	return r
}

// NewWithReporters uses reporters verbatim.
func NewWithReporters(reporters []metrics.Reporter, tags TagSource, logger lager.Logger) *DynamicReporter {
	if reporters == nil {
		reporters = []metrics.Reporter{}
	}
	return New(func(context.Context) (Setup, error) {
		return Setup{Reporters: reporters}, nil
	}, nil, tags, logger)
}

// NewWithConfigs runs factories against configs.
func NewWithConfigs(configs config.ReporterConfigs, factories []emitter.Factory, tags TagSource, logger lager.Logger) *DynamicReporter {
	return New(ConfigSetup(configs), factories, tags, logger)
}

// NewDefault reads the reporter configuration from the named Secrets Manager
// secret and tags metrics from the process environment.
func NewDefault(session client.ConfigProvider, secretID string, env envconfig.Lookuper, stdout io.Writer, logger lager.Logger) *DynamicReporter {
	source := config.NewSecretSource(secretsmanager.New(session), secretID, logger)
	return New(
		SecretSetup(source),
		emitter.DefaultFactories(session, env, stdout, logger),
		environment.Default,
		logger,
	)
}

func (r *DynamicReporter) resolve(setup SetupFunc) {
	result, err := setup(context.Background())
	if err != nil {
		r.logger.Error("resolving-reporter-configs", err)
		result = Setup{}
	}

	reporters := result.Reporters
	if reporters == nil {
		configs := config.ReporterConfigs{}
		if result.Configs != nil {
			configs = *result.Configs
		}
		reporters = r.build(configs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporters = reporters
	r.resolved = true
	for _, metric := range r.queued {
		r.forward(reporters, metric)
	}
	r.queued = nil
	close(r.ready)

	r.logger.Info("resolved", lager.Data{"reporters": names(reporters)})
}

func (r *DynamicReporter) build(configs config.ReporterConfigs) []metrics.Reporter {
	reporters := []metrics.Reporter{}
	for _, factory := range r.factories {
		if reporter := factory(configs); reporter != nil {
			reporters = append(reporters, reporter)
		}
	}
	return reporters
}

// Ready is closed once the reporters are resolved.
func (r *DynamicReporter) Ready() <-chan struct{} {
	return r.ready
}

// Reporters returns the active reporters, or nil before resolution.
func (r *DynamicReporter) Reporters() []metrics.Reporter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolved {
		return nil
	}
	return append([]metrics.Reporter{}, r.reporters...)
}

func (r *DynamicReporter) wait(ctx context.Context) ([]metrics.Reporter, error) {
	select {
	case <-r.ready:
		return r.Reporters(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start starts every reporter concurrently. Reporter failures are logged
// only; the error is from ctx.
func (r *DynamicReporter) Start(ctx context.Context) error {
	reporters, err := r.wait(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, reporter := range reporters {
		g.Go(func() error {
			if err := reporter.Start(ctx); err != nil {
				r.logger.Error("starting-reporter", err, lager.Data{"reporter": name(reporter)})
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// Log merges the default tags under the metric's own and forwards it to
// every reporter. Metrics logged before resolution are replayed once it
// completes.
func (r *DynamicReporter) Log(metric metrics.Metric) {
	defaults := metrics.Tags{}
	if r.tags != nil {
		defaults = r.tags.DefaultTags()
	}
	metric.Tags = metrics.MergeTags(defaults, metric.Tags)

	r.mu.Lock()
	if !r.resolved {
		r.queued = append(r.queued, metric)
		r.mu.Unlock()
		return
	}
	reporters := r.reporters
	r.mu.Unlock()

	r.forward(reporters, metric)
}

func (r *DynamicReporter) forward(reporters []metrics.Reporter, metric metrics.Metric) {
	for _, reporter := range reporters {
		reporter.Log(metric)
	}
}

// End ends every reporter concurrently and returns their combined failures.
func (r *DynamicReporter) End(ctx context.Context) error {
	reporters, err := r.wait(ctx)
	if err != nil {
		return err
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, reporter := range reporters {
		g.Go(func() error {
			if err := reporter.End(ctx); err != nil {
				r.logger.Error("ending-reporter", err, lager.Data{"reporter": name(reporter)})
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return result.ErrorOrNil()
}

type named interface {
	GetName() string
}

func name(reporter metrics.Reporter) string {
	if n, ok := reporter.(named); ok {
		return n.GetName()
	}
	return "unknown"
}

func names(reporters []metrics.Reporter) []string {
	result := []string{}
	for _, reporter := range reporters {
		result = append(result, name(reporter))
	}
	return result
}
