package emitter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alphagov/paas-rstreams-metrics/pkg/config"
	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
)

// StdOutReporter prints metrics instead of sending them.
type StdOutReporter struct {
	mu  sync.Mutex
	out io.Writer
}

var _ metrics.Reporter = (*StdOutReporter)(nil)

func NewStdOutReporter(out io.Writer) *StdOutReporter {
	return &StdOutReporter{out: out}
}

// StdOutFactory builds a StdOutReporter when the configs have a Stdout
// section.
func StdOutFactory(out io.Writer) Factory {
	return func(configs config.ReporterConfigs) metrics.Reporter {
		if configs.Stdout == nil {
			return nil
		}
		return NewStdOutReporter(out)
	}
}

// GetName ...
func (s *StdOutReporter) GetName() string {
	return "Stdout"
}

// Start ...
func (s *StdOutReporter) Start(ctx context.Context) error {
	return nil
}

// Log ...
func (s *StdOutReporter) Log(m metrics.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, "============>", m.ID, m.Value, m.Unit(), strings.Join(TagPairs(m.Tags), " "))
}

// End ...
func (s *StdOutReporter) End(ctx context.Context) error {
	return nil
}
