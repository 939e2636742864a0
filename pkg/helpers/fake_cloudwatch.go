package helpers

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
)

// FakeCloudWatchAPI records PutMetricData calls. Any other CloudWatch method
// panics through the nil embedded interface.
type FakeCloudWatchAPI struct {
	cloudwatchiface.CloudWatchAPI

	PutMetricDataWithContextStub func(*cloudwatch.PutMetricDataInput) error

	mu          sync.Mutex
	args        []*cloudwatch.PutMetricDataInput
	returnErr   error
	inFlight    int
	maxInFlight int
}

func (f *FakeCloudWatchAPI) PutMetricDataWithContext(
	ctx aws.Context,
	input *cloudwatch.PutMetricDataInput,
	_ ...request.Option,
) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	f.args = append(f.args, input)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	stub := f.PutMetricDataWithContextStub
	err := f.returnErr
	f.mu.Unlock()

	if stub != nil {
		err = stub(input)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *FakeCloudWatchAPI) PutMetricDataWithContextReturns(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnErr = err
}

func (f *FakeCloudWatchAPI) PutMetricDataWithContextCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.args)
}

func (f *FakeCloudWatchAPI) PutMetricDataWithContextArgsForCall(i int) *cloudwatch.PutMetricDataInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.args[i]
}

// MaxInFlight is the highest number of concurrent PutMetricData calls seen.
func (f *FakeCloudWatchAPI) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// SentMetricNames flattens every sent datum name in call order.
func (f *FakeCloudWatchAPI) SentMetricNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := []string{}
	for _, input := range f.args {
		for _, datum := range input.MetricData {
			names = append(names, aws.StringValue(datum.MetricName))
		}
	}
	return names
}
