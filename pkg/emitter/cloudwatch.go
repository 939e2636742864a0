package emitter

import (
	"context"
	"strings"
	"sync"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/alphagov/paas-rstreams-metrics/pkg/utils"
)

const (
	// MetricsSendLimit is both the buffer size that triggers a send and the
	// PutMetricData per-request datum limit.
	MetricsSendLimit = 20

	// MaxConcurrentSends bounds in-flight PutMetricData requests per send.
	MaxConcurrentSends = 10

	DefaultNamespace = "rstreams"
	DefaultRegion    = "us-east-1"
	RegionEnvVar     = "AWS_REGION"
)

// pendingSend is one tracked asynchronous Send.
type pendingSend struct {
	done chan struct{}
	err  error
}

// CloudWatchReporter buffers metrics and sends them to CloudWatch in batches.
type CloudWatchReporter struct {
	client      cloudwatchiface.CloudWatchAPI
	namespace   string
	sendMetrics bool
	logger      lager.Logger

	mu      sync.Mutex
	buffer  []metrics.Metric
	pending []*pendingSend
}

var _ metrics.Reporter = (*CloudWatchReporter)(nil)

// NewCloudWatchReporter ...
func NewCloudWatchReporter(
	client cloudwatchiface.CloudWatchAPI,
	cfg config.AWSConfig,
	dontSendMetrics bool,
	logger lager.Logger,
) *CloudWatchReporter {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CloudWatchReporter{
		client:      client,
		namespace:   namespace,
		sendMetrics: !dontSendMetrics,
		logger:      logger.Session("cloudwatch-reporter", lager.Data{"namespace": namespace}),
	}
}

// CloudWatchFactory builds a CloudWatchReporter when the configs have an AWS
// section.
func CloudWatchFactory(session client.ConfigProvider, env envconfig.Lookuper, logger lager.Logger) Factory {
	return func(configs config.ReporterConfigs) metrics.Reporter {
		if configs.AWS == nil {
			return nil
		}

		region := configs.AWS.Region
		if region == "" {
			region = utils.GetEnvValue(env, RegionEnvVar, DefaultRegion)
		}

		logger.Info("activating-cloudwatch-reporter", lager.Data{"region": region})
		return NewCloudWatchReporter(
			cloudwatch.New(session, aws.NewConfig().WithRegion(region)),
			*configs.AWS,
			configs.DontSendMetrics,
			logger,
		)
	}
}

// GetName ...
func (r *CloudWatchReporter) GetName() string {
	return "AWS"
}

// Start ...
func (r *CloudWatchReporter) Start(ctx context.Context) error {
	return nil
}

// Log buffers the metric, starting a send once MetricsSendLimit are buffered.
func (r *CloudWatchReporter) Log(metric metrics.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, metric)
	if len(r.buffer) >= MetricsSendLimit {
		batch := make([]metrics.Metric, MetricsSendLimit)
		copy(batch, r.buffer[:MetricsSendLimit])
		r.buffer = append([]metrics.Metric{}, r.buffer[MetricsSendLimit:]...)
		r.sendAsync(context.Background(), batch)
	}
}

// End sends whatever is buffered and waits for every send, returning the
// first send error.
func (r *CloudWatchReporter) End(ctx context.Context) error {
	r.mu.Lock()
	if len(r.buffer) > 0 {
		batch := r.buffer
		r.buffer = nil
		r.sendAsync(ctx, batch)
	}
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	var firstErr error
	for _, p := range pending {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if p.err != nil && firstErr == nil {
			firstErr = p.err
		}
	}
	return firstErr
}

// Pending returns the number of sends not yet collected by End.
func (r *CloudWatchReporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// sendAsync must be called with r.mu held.
func (r *CloudWatchReporter) sendAsync(ctx context.Context, batch []metrics.Metric) {
	p := &pendingSend{done: make(chan struct{})}
	r.pending = append(r.pending, p)

	go func() {
		defer close(p.done)
		p.err = r.Send(ctx, batch)
		if p.err != nil {
			r.logger.Error("send-failed", p.err, lager.Data{"metrics": len(batch)})
		}
	}()
}

// Send converts batch into PutMetricData requests of at most
// MetricsSendLimit datums and sends them with at most MaxConcurrentSends in
// flight. With sending disabled only the conversion runs.
func (r *CloudWatchReporter) Send(ctx context.Context, batch []metrics.Metric) error {
	chunks := [][]*cloudwatch.MetricDatum{}
	for i, metric := range batch {
		if i%MetricsSendLimit == 0 {
			chunks = append(chunks, make([]*cloudwatch.MetricDatum, 0, MetricsSendLimit))
		}
		datum := r.toDatum(metric)
		chunks[len(chunks)-1] = append(chunks[len(chunks)-1], datum)
	}

	if !r.sendMetrics {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentSends)
	for _, chunk := range chunks {
		g.Go(func() error {
			// Stop issuing chunks after a failure; in-flight ones run to completion.
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := r.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(r.namespace),
				MetricData: chunk,
			})
			return err
		})
	}
	return g.Wait()
}

func (r *CloudWatchReporter) toDatum(metric metrics.Metric) *cloudwatch.MetricDatum {
	dimensions := Dimensions(metric.Tags)
	r.logger.Debug("metric", lager.Data{
		"id":         metric.ID,
		"value":      metric.Value,
		"dimensions": dimensions,
	})

	datum := &cloudwatch.MetricDatum{
		MetricName: aws.String(metric.ID),
		Value:      aws.Float64(metric.Value),
		Unit:       aws.String(capitalize(metric.Unit())),
		Dimensions: dimensions,
	}
	if !metric.Timestamp.IsZero() {
		datum.Timestamp = aws.Time(metric.Timestamp)
	}
	return datum
}

func capitalize(units string) string {
	return strings.ToUpper(units[:1]) + units[1:]
}
