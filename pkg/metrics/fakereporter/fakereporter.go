package fakereporter

import (
	"context"
	"sync"

	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
	"github.com/stretchr/testify/mock"
)

type FakeReporter struct {
	mock.Mock

	mu     sync.Mutex
	logged []metrics.Metric
}

var _ metrics.Reporter = (*FakeReporter)(nil)

func (r *FakeReporter) Start(ctx context.Context) error {
	args := r.Called(ctx)
	return args.Error(0)
}

func (r *FakeReporter) Log(metric metrics.Metric) {
	r.Called(metric)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.logged = append(r.logged, metric)
}

func (r *FakeReporter) End(ctx context.Context) error {
	args := r.Called(ctx)
	return args.Error(0)
}

// LoggedMetrics returns the metrics passed to Log, in call order.
func (r *FakeReporter) LoggedMetrics() []metrics.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.Metric{}, r.logged...)
}
