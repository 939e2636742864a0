package pump

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/alphagov/paas-rstreams-metrics/pkg/metrics"
)

const maxLineSize = 1024 * 1024

// Pump feeds JSON-line metrics from an input into a reporter. It is an
// ifrit.Runner: it starts the reporter, signals ready, logs every line and
// ends the reporter on EOF or on a signal.
type Pump struct {
	reporter   metrics.Reporter
	input      io.Reader
	endTimeout time.Duration
	logger     lager.Logger
}

// NewPump ...
func NewPump(reporter metrics.Reporter, input io.Reader, endTimeout time.Duration, logger lager.Logger) *Pump {
	return &Pump{
		reporter:   reporter,
		input:      input,
		endTimeout: endTimeout,
		logger:     logger,
	}
}

// Run ...
func (p *Pump) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	if err := p.reporter.Start(context.Background()); err != nil {
		return err
	}
	p.logger.Info("pump-started")
	close(ready)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go p.read(lines, readErr)

	logged := 0
loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if p.logLine(line) {
				logged++
			}
		case sig := <-signals:
			p.logger.Info("signalled", lager.Data{"signal": sig.String()})
			break loop
		}
	}

	select {
	case err := <-readErr:
		p.logger.Error("reading-input", err)
	default:
	}

	p.logger.Info("pump-ending", lager.Data{"metrics": logged})
	return p.end()
}

func (p *Pump) read(lines chan<- []byte, readErr chan<- error) {
	defer close(lines)

	scanner := bufio.NewScanner(p.input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte{}, scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		lines <- line
	}
	if err := scanner.Err(); err != nil {
		readErr <- err
	}
}

func (p *Pump) logLine(line []byte) bool {
	metric, err := ParseMetric(line)
	if err != nil {
		p.logger.Error("skipping-invalid-metric", err, lager.Data{"line": string(line)})
		return false
	}
	p.reporter.Log(metric)
	return true
}

func (p *Pump) end() error {
	ctx := context.Background()
	if p.endTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.endTimeout)
		defer cancel()
	}

	if err := p.reporter.End(ctx); err != nil {
		p.logger.Error("ending-reporter", err)
		return err
	}
	p.logger.Info("pump-ended")
	return nil
}

// ParseMetric decodes one JSON metric. The id is required.
func ParseMetric(line []byte) (metrics.Metric, error) {
	var metric metrics.Metric
	if err := json.Unmarshal(line, &metric); err != nil {
		return metrics.Metric{}, err
	}
	if metric.ID == "" {
		return metrics.Metric{}, errors.New("metric has no id")
	}
	return metric, nil
}
