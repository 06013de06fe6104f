// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on a ticker (default once per
// minute) and once more on Close, so a long log pass shows up as a time
// series rather than a single point at exit. If the process is killed
// before Close runs, the last window is lost.
//
// Only the metric names declared in internal/metrics are forwarded. Each one
// maps to a Datadog metric name and a fixed list of label keys that become
// tags; other labels are dropped so tag cardinality stays bounded.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"sparkify/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "sparkify-etl".
	JobName string

	// Tags are extra Datadog tags, e.g. "run:<uuid>" or "service:etl".
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
// Tests substitute a fake so no HTTP happens.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type seriesSpec struct {
	ddName  string
	tagKeys []string
}

var counterSpecs = map[string]seriesSpec{
	metrics.StepTotal:      {ddName: "etl.step.total", tagKeys: []string{"step", "status"}},
	metrics.FilesTotal:     {ddName: "etl.files.total", tagKeys: []string{"pass", "status"}},
	metrics.RecordsTotal:   {ddName: "etl.records.total", tagKeys: []string{"kind"}},
	metrics.RowErrorsTotal: {ddName: "etl.row_errors.total", tagKeys: []string{"table"}},
	metrics.LookupsTotal:   {ddName: "etl.lookups.total", tagKeys: []string{"result"}},
}

var histogramSpecs = map[string]seriesSpec{
	metrics.StepDurationSeconds: {ddName: "etl.step.duration_seconds", tagKeys: []string{"step", "status"}},
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[string]float64   // seriesKey -> sum
	samples  map[string][]float64 // seriesKey -> observations
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials and site come from the client's usual
// DD_API_KEY / DD_SITE environment; network errors surface from Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "sparkify-etl"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[string]float64),
		samples:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits what is left. Calling it again is a
// no-op apart from another Flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	spec, ok := counterSpecs[name]
	if !ok || delta <= 0 {
		return
	}
	k := seriesKey(spec, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	spec, ok := histogramSpecs[name]
	if !ok || value < 0 {
		return
	}
	k := seriesKey(spec, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

// seriesKey encodes the Datadog name and rendered tags of one series.
// Missing label values render as "unknown".
func seriesKey(spec seriesSpec, labels metrics.Labels) string {
	parts := make([]string, 0, 1+len(spec.tagKeys))
	parts = append(parts, spec.ddName)
	for _, key := range spec.tagKeys {
		v := strings.TrimSpace(labels[key])
		if v == "" {
			v = "unknown"
		}
		parts = append(parts, key+":"+v)
	}
	return strings.Join(parts, "\x00")
}

func splitSeriesKey(k string) (metric string, tags []string) {
	parts := strings.Split(k, "\x00")
	return parts[0], parts[1:]
}

type snapshot struct {
	counters map[string]float64
	samples  map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.samples) == 0
}

// snapshotAndReset detaches the buffers so submission runs outside the lock.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[string]float64)
	b.samples = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails. Returns nil if there was nothing to send.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a snapshot into Datadog series, sorted by key so the
// payload is deterministic.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+6*len(s.samples))

	for _, k := range sortedKeys(s.counters) {
		v := s.counters[k]
		if v == 0 {
			continue
		}
		metric, tags := splitSeriesKey(k)
		series = append(series, point(metric, datadogV2.METRICINTAKETYPE_COUNT, v, withTags(b.baseTags, tags...), nowUnix))
	}

	for _, k := range sortedKeys(s.samples) {
		metric, tags := splitSeriesKey(k)
		series = appendPercentiles(series, metric, s.samples[k], withTags(b.baseTags, tags...), nowUnix)
	}
	return series
}

// appendPercentiles publishes p50/p90/p95/p99/max/samples gauges for one
// sample set. samples is not modified.
func appendPercentiles(series []datadogV2.MetricSeries, metric string, samples []float64, tags []string, nowUnix int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return series
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	gauge := datadogV2.METRICINTAKETYPE_GAUGE
	return append(series,
		point(metric+".p50", gauge, percentileNearestRank(cp, 0.50), tags, nowUnix),
		point(metric+".p90", gauge, percentileNearestRank(cp, 0.90), tags, nowUnix),
		point(metric+".p95", gauge, percentileNearestRank(cp, 0.95), tags, nowUnix),
		point(metric+".p99", gauge, percentileNearestRank(cp, 0.99), tags, nowUnix),
		point(metric+".max", gauge, cp[len(cp)-1], tags, nowUnix),
		point(metric+".samples", gauge, float64(len(cp)), tags, nowUnix),
	)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:etl".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WrapInitErr prefixes backend construction failures for the CLI.
func WrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
