// Package metrics counts store activity with an OpenTelemetry SDK meter
// provider and reads the counters back through a manual reader.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"scanvault/internal/activity"
)

const meterName = "scanvault"

// Registry owns a meter provider whose only reader is collected on demand.
// Counters are cumulative for the life of the registry.
type Registry struct {
	mu       sync.Mutex
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	counters map[string]metric.Int64Counter // name -> instrument
}

// NewRegistry creates a registry with its own SDK meter provider.
func NewRegistry() *Registry {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &Registry{
		reader:   reader,
		provider: provider,
		meter:    provider.Meter(meterName),
		counters: make(map[string]metric.Int64Counter),
	}
}

// MeterProvider exposes the provider so other instrumentation can share it.
func (r *Registry) MeterProvider() metric.MeterProvider {
	return r.provider
}

// Shutdown stops the provider. Later increments are dropped.
func (r *Registry) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// CounterName returns the event counter name for op.
func CounterName(op activity.Op) string {
	return "scanvault_" + string(op) + "_total"
}

// BytesName returns the byte counter name for op.
func BytesName(op activity.Op) string {
	return "scanvault_" + string(op) + "_bytes_total"
}

func fullKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc adds n to the named counter under labels.
func (r *Registry) Inc(ctx context.Context, name string, labels map[string]string, n int64) {
	inst := r.instrument(name)
	if inst == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	inst.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (r *Registry) instrument(name string) metric.Int64Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst := r.counters[name]; inst != nil {
		return inst
	}
	opts := []metric.Int64CounterOption{metric.WithUnit("{event}")}
	if strings.HasSuffix(name, "_bytes_total") {
		opts = []metric.Int64CounterOption{metric.WithUnit("By")}
	}
	inst, err := r.meter.Int64Counter(name, opts...)
	if err != nil {
		otel.Handle(err)
		return nil
	}
	r.counters[name] = inst
	return inst
}

// Observe counts ev and its bytes under the event's store label.
func (r *Registry) Observe(ctx context.Context, ev activity.Event) {
	labels := map[string]string{"store": ev.Store}
	r.Inc(ctx, CounterName(ev.Op), labels, 1)
	if ev.Bytes > 0 {
		r.Inc(ctx, BytesName(ev.Op), labels, ev.Bytes)
	}
}

var _ activity.Observer = (*Registry)(nil)

// Snapshot collects the reader and returns counter key to value. Keys have
// the form name{label=value,...}.
func (r *Registry) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	out := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[fullKey(m.Name, labelsOf(dp.Attributes))] += dp.Value
			}
		}
	}
	return out, nil
}

func labelsOf(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	labels := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		labels[string(kv.Key)] = kv.Value.Emit()
	}
	return labels
}

// Value returns the current value of a counter, or 0 when unset.
func (r *Registry) Value(ctx context.Context, name string, labels map[string]string) (int64, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap[fullKey(name, labels)], nil
}

// SnapshotLines returns sorted "key value" lines.
func (r *Registry) SnapshotLines(ctx context.Context) ([]string, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %d", k, snap[k]))
	}
	return lines, nil
}
