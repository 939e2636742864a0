package helpers

import (
	"context"
	"sync"
	"time"
)

// DistributionCall is one recorded Datadog distribution send.
type DistributionCall struct {
	Name       string
	Value      float64
	Date       time.Time
	ForceAsync bool
	Tags       []string
}

// FakeListener records the calls a Datadog reporter makes on its listener.
type FakeListener struct {
	StartErr    error
	CompleteErr error

	mu            sync.Mutex
	started       int
	completed     int
	distributions []DistributionCall
}

func (f *FakeListener) OnStartInvocation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.StartErr
}

func (f *FakeListener) OnCompleteInvocation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return f.CompleteErr
}

func (f *FakeListener) SendDistributionMetric(name string, value float64, forceAsync bool, tags ...string) {
	f.record(DistributionCall{Name: name, Value: value, ForceAsync: forceAsync, Tags: tags})
}

func (f *FakeListener) SendDistributionMetricWithDate(name string, value float64, date time.Time, forceAsync bool, tags ...string) {
	f.record(DistributionCall{Name: name, Value: value, Date: date, ForceAsync: forceAsync, Tags: tags})
}

func (f *FakeListener) record(call DistributionCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distributions = append(f.distributions, call)
}

func (f *FakeListener) StartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeListener) CompleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *FakeListener) Distributions() []DistributionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DistributionCall{}, f.distributions...)
}
