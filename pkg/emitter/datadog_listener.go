package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultExtensionPath is where the Datadog Lambda extension is installed.
	DefaultExtensionPath = "/opt/extensions/datadog-agent"
	DefaultStatsdAddr    = "127.0.0.1:8125"

	distributionPointsPath = "/api/v1/distribution_points"
)

// Listener receives Datadog distribution points for one invocation.
type Listener interface {
	OnStartInvocation(ctx context.Context) error
	OnCompleteInvocation(ctx context.Context) error
	SendDistributionMetric(name string, value float64, forceAsync bool, tags ...string)
	SendDistributionMetricWithDate(name string, value float64, date time.Time, forceAsync bool, tags ...string)
}

// ListenerDeps are the collaborators NewListener may wire in.
type ListenerDeps struct {
	Decrypter     *KeyDecrypter
	Clock         clock.Clock
	Out           io.Writer
	ExtensionPath string
	StatsdAddr    string

	// APIBaseURL overrides https://api.<site>.
	APIBaseURL string
	HTTPClient *http.Client
}

// NewListener picks log forwarding when enabled, the Lambda extension when
// installed, and the HTTP API otherwise.
func NewListener(settings DataDogSettings, deps ListenerDeps, logger lager.Logger) (Listener, error) {
	if deps.Clock == nil {
		deps.Clock = clock.NewClock()
	}

	switch {
	case settings.LogForwarding:
		out := deps.Out
		if out == nil {
			out = os.Stdout
		}
		return NewLogListener(out, deps.Clock), nil
	case deps.ExtensionPath != "" && fileExists(deps.ExtensionPath):
		return NewStatsdListener(StatsdDialer(deps.StatsdAddr), logger), nil
	default:
		return NewAPIListener(settings, deps, logger), nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type logPoint struct {
	Timestamp int64    `json:"e"`
	Metric    string   `json:"m"`
	Tags      []string `json:"t"`
	Value     float64  `json:"v"`
}

// LogListener writes each point as a JSON line for the Datadog log forwarder.
type LogListener struct {
	mu    sync.Mutex
	out   io.Writer
	clock clock.Clock
}

func NewLogListener(out io.Writer, clk clock.Clock) *LogListener {
	return &LogListener{out: out, clock: clk}
}

func (l *LogListener) OnStartInvocation(ctx context.Context) error    { return nil }
func (l *LogListener) OnCompleteInvocation(ctx context.Context) error { return nil }

func (l *LogListener) SendDistributionMetric(name string, value float64, forceAsync bool, tags ...string) {
	l.SendDistributionMetricWithDate(name, value, l.clock.Now(), forceAsync, tags...)
}

func (l *LogListener) SendDistributionMetricWithDate(name string, value float64, date time.Time, forceAsync bool, tags ...string) {
	line, err := json.Marshal(logPoint{Timestamp: date.Unix(), Metric: name, Tags: tags, Value: value})
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

// StatsdDialer returns a dial function for a DogStatsD client on addr.
func StatsdDialer(addr string) func() (statsd.ClientInterface, error) {
	return func() (statsd.ClientInterface, error) {
		return statsd.New(addr, statsd.WithoutTelemetry())
	}
}

// StatsdListener sends points to the Datadog Lambda extension over DogStatsD.
// A client is dialled on first use and closed when the invocation completes.
type StatsdListener struct {
	dial   func() (statsd.ClientInterface, error)
	logger lager.Logger

	mu     sync.Mutex
	client statsd.ClientInterface
}

func NewStatsdListener(dial func() (statsd.ClientInterface, error), logger lager.Logger) *StatsdListener {
	return &StatsdListener{dial: dial, logger: logger.Session("statsd-listener")}
}

func (l *StatsdListener) connect() (statsd.ClientInterface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		client, err := l.dial()
		if err != nil {
			return nil, fmt.Errorf("creating statsd client: %w", err)
		}
		l.client = client
	}
	return l.client, nil
}

func (l *StatsdListener) OnStartInvocation(ctx context.Context) error {
	_, err := l.connect()
	return err
}

// OnCompleteInvocation flushes and closes the client.
func (l *StatsdListener) OnCompleteInvocation(ctx context.Context) error {
	l.mu.Lock()
	client := l.client
	l.client = nil
	l.mu.Unlock()

	if client == nil {
		return nil
	}
	flushErr := client.Flush()
	if err := client.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

func (l *StatsdListener) SendDistributionMetric(name string, value float64, forceAsync bool, tags ...string) {
	client, err := l.connect()
	if err != nil {
		l.logger.Error("distribution-dropped", err, lager.Data{"metric": name})
		return
	}
	if err := client.Distribution(name, value, tags, 1); err != nil {
		l.logger.Error("distribution-failed", err, lager.Data{"metric": name})
	}
}

// SendDistributionMetricWithDate drops the date: DogStatsD distributions are
// always stamped by the extension on receipt.
func (l *StatsdListener) SendDistributionMetricWithDate(name string, value float64, date time.Time, forceAsync bool, tags ...string) {
	l.logger.Debug("dropping-distribution-date", lager.Data{"metric": name, "date": date})
	l.SendDistributionMetric(name, value, forceAsync, tags...)
}

type distributionSeries struct {
	Metric string   `json:"metric"`
	Tags   []string `json:"tags"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
}

type distributionPayload struct {
	Series []distributionSeries `json:"series"`
}

// APIListener buffers an invocation's points and posts them to the Datadog
// distribution points API when the invocation completes. Failed posts are
// not retried.
type APIListener struct {
	baseURL   string
	apiKey    string
	apiKeyKMS string
	decrypter *KeyDecrypter
	client    *http.Client
	clock     clock.Clock
	logger    lager.Logger

	mu     sync.Mutex
	series []distributionSeries
}

func NewAPIListener(settings DataDogSettings, deps ListenerDeps, logger lager.Logger) *APIListener {
	baseURL := deps.APIBaseURL
	if baseURL == "" {
		baseURL = "https://api." + settings.SiteURL
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	return &APIListener{
		baseURL:   baseURL,
		apiKey:    settings.APIKey,
		apiKeyKMS: settings.APIKeyKMS,
		decrypter: deps.Decrypter,
		client:    httpClient,
		clock:     clk,
		logger:    logger.Session("api-listener", lager.Data{"url": baseURL}),
	}
}

// OnStartInvocation decrypts the KMS API key on first use. Points buffered
// before the start are kept and posted with the rest.
func (l *APIListener) OnStartInvocation(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.apiKey != "" || l.apiKeyKMS == "" {
		return nil
	}
	if l.decrypter == nil {
		return errors.New("no KMS decrypter for the Datadog API key")
	}

	key, err := l.decrypter.Decrypt(ctx, l.apiKeyKMS)
	if err != nil {
		return err
	}
	l.apiKey = key
	return nil
}

func (l *APIListener) SendDistributionMetric(name string, value float64, forceAsync bool, tags ...string) {
	l.SendDistributionMetricWithDate(name, value, l.clock.Now(), forceAsync, tags...)
}

func (l *APIListener) SendDistributionMetricWithDate(name string, value float64, date time.Time, forceAsync bool, tags ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.series = append(l.series, distributionSeries{
		Metric: name,
		Tags:   tags,
		Type:   "distribution",
		Points: [][]any{{date.Unix(), []float64{value}}},
	})
}

func (l *APIListener) OnCompleteInvocation(ctx context.Context) error {
	l.mu.Lock()
	series := l.series
	l.series = nil
	apiKey := l.apiKey
	l.mu.Unlock()

	if len(series) == 0 {
		return nil
	}
	if apiKey == "" {
		return errors.New("no Datadog API key")
	}

	body, err := json.Marshal(distributionPayload{Series: series})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+distributionPointsPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", apiKey)

	l.logger.Debug("posting-distribution-points", lager.Data{"series": len(series)})
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting distribution points: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("posting distribution points: unexpected status %d", resp.StatusCode)
	}
	return nil
}
